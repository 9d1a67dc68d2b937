package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/JonMunkholm/issuerdesk/internal/logging"
	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/store"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// Options configures a Service. Zero values select defaults.
type Options struct {
	MaxConcurrent int
	MaxWait       time.Duration
	// PendingTTL is how long an upload may wait in the mapping step.
	PendingTTL time.Duration
	Load       tabular.Options
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Service runs uploads against a document store.
type Service struct {
	store   store.Store
	limiter *UploadLimiter
	pending *pendingUploads
	load    tabular.Options
	now     func() time.Time
}

// NewService wires a Service to st.
func NewService(st store.Store, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:   st,
		limiter: NewUploadLimiter(opts.MaxConcurrent, opts.MaxWait),
		pending: newPendingUploads(opts.PendingTTL, now),
		load:    opts.Load,
		now:     now,
	}
}

// ProcessIssuerRows validates rows and merges them into the issuer
// collection on behalf of p.
func (s *Service) ProcessIssuerRows(ctx context.Context, rows Rows, m Mapping, p Principal) (ProcessResult, error) {
	res := ProcessResult{RecordType: schema.Issuer}
	if err := Authorize(p); err != nil {
		return res, err
	}
	if err := requireMapped(schema.Issuer, m); err != nil {
		return res, err
	}

	unlock, err := s.store.Lock(ctx)
	if err != nil {
		return res, storeError("lock", err)
	}
	defer unlock()

	issuers, err := s.loadIssuers(ctx)
	if err != nil {
		return res, err
	}
	if err := checkIssuerOwnership(rows, m, issuers, p.Username); err != nil {
		return res, err
	}

	res.Processed, res.Errors = processIssuerRows(rows, m, issuers, p.Username)
	if res.Processed == 0 {
		return res, noRowsProcessedError(schema.Issuer.Plural(), res.Errors)
	}
	if err := s.store.Save(ctx, issuersDoc, issuers); err != nil {
		return res, storeError("save issuers", err)
	}
	return res, nil
}

// ProcessSecurityRows validates rows against the current issuers and
// overwrites the matching securities.
func (s *Service) ProcessSecurityRows(ctx context.Context, rows Rows, m Mapping, p Principal) (ProcessResult, error) {
	res := ProcessResult{RecordType: schema.Security}
	if err := Authorize(p); err != nil {
		return res, err
	}
	if err := requireMapped(schema.Security, m); err != nil {
		return res, err
	}

	unlock, err := s.store.Lock(ctx)
	if err != nil {
		return res, storeError("lock", err)
	}
	defer unlock()

	issuers, err := s.loadIssuers(ctx)
	if err != nil {
		return res, err
	}
	securities, err := s.loadSecurities(ctx)
	if err != nil {
		return res, err
	}

	res.Processed, res.Errors = processSecurityRows(rows, m, issuers, securities, s.now())
	if res.Processed == 0 {
		return res, noRowsProcessedError(schema.Security.Plural(), res.Errors)
	}
	if err := s.store.Save(ctx, securitiesDoc, securities); err != nil {
		return res, storeError("save securities", err)
	}
	return res, nil
}

// processRows dispatches on the record type.
func (s *Service) processRows(ctx context.Context, rt schema.RecordType, rows Rows, m Mapping, p Principal) (ProcessResult, error) {
	switch rt {
	case schema.Issuer:
		return s.ProcessIssuerRows(ctx, rows, m, p)
	case schema.Security:
		return s.ProcessSecurityRows(ctx, rows, m, p)
	}
	return ProcessResult{}, fmt.Errorf("unknown record type %q", rt)
}

// requireMapped rejects a mapping that leaves a required field without a
// column.
func requireMapped(rt schema.RecordType, m Mapping) error {
	var missing []string
	for _, f := range schema.Required(rt) {
		if m.Fields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return missingRequiredError(missing)
	}
	return nil
}

// Issuers returns the full issuer collection.
func (s *Service) Issuers(ctx context.Context) (Issuers, error) {
	return s.loadIssuers(ctx)
}

// Securities returns the full security collection.
func (s *Service) Securities(ctx context.Context) (Securities, error) {
	return s.loadSecurities(ctx)
}

// IssuerView is an issuer with its key, for listings.
type IssuerView struct {
	Name string `json:"issuer_name"`
	Issuer
}

// ListIssuers returns issuers sorted by name. A non-empty custodian keeps
// only the issuers it owns.
func (s *Service) ListIssuers(ctx context.Context, custodian string) ([]IssuerView, error) {
	issuers, err := s.loadIssuers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]IssuerView, 0, len(issuers))
	for name, rec := range issuers {
		if custodian != "" && rec.Custodian != custodian {
			continue
		}
		out = append(out, IssuerView{Name: name, Issuer: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SecurityFilter narrows FindSecurities. Empty fields match everything.
type SecurityFilter struct {
	Issuer string `validate:"omitempty,max=256"`
	ISIN   string `validate:"omitempty,isin"`
}

// FindSecurities returns matching securities sorted by security_id.
func (s *Service) FindSecurities(ctx context.Context, f SecurityFilter) ([]Security, error) {
	if err := ValidateStruct(f); err != nil {
		return nil, err
	}
	securities, err := s.loadSecurities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Security, 0, len(securities))
	for _, sec := range securities {
		if f.Issuer != "" && sec.Issuer != f.Issuer {
			continue
		}
		if f.ISIN != "" && sec.ISIN != f.ISIN {
			continue
		}
		out = append(out, sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SecurityID < out[j].SecurityID })
	return out, nil
}

func (s *Service) loadIssuers(ctx context.Context) (Issuers, error) {
	issuers := Issuers{}
	if err := s.loadDoc(ctx, issuersDoc, &issuers); err != nil {
		return nil, err
	}
	if issuers == nil {
		issuers = Issuers{}
	}
	return issuers, nil
}

func (s *Service) loadSecurities(ctx context.Context) (Securities, error) {
	securities := Securities{}
	if err := s.loadDoc(ctx, securitiesDoc, &securities); err != nil {
		return nil, err
	}
	if securities == nil {
		securities = Securities{}
	}
	return securities, nil
}

// loadDoc treats a missing document as empty.
func (s *Service) loadDoc(ctx context.Context, name string, v any) error {
	err := s.store.Load(ctx, name, v)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	logging.FromContext(ctx).Error("store read failed", "document", name, "error", err)
	return storeError("load "+name, err)
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// UploadLimiterStatus reports upload concurrency.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
