package core

import (
	"context"
	"strings"
	"time"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// PreviewSummary counts what processing the upload would do.
type PreviewSummary struct {
	TotalRows       int `json:"total_rows"`
	NewRows         int `json:"new_rows"`
	UpdateRows      int `json:"update_rows"`
	ErrorRows       int `json:"error_rows"`
	DuplicateInFile int `json:"duplicate_in_file"`
}

// RowPreview is one row as it would be stored.
type RowPreview struct {
	LineNumber int               `json:"line_number"`
	Key        string            `json:"key"`
	Values     map[string]string `json:"values"`
}

// ErrorPreview is a row that would be rejected or only partly applied.
type ErrorPreview struct {
	LineNumber int      `json:"line_number"`
	Key        string   `json:"key,omitempty"`
	Errors     []string `json:"errors"`
}

// DuplicatePreview is a key that more than one row writes; the last wins.
type DuplicatePreview struct {
	Key         string `json:"key"`
	LineNumbers []int  `json:"line_numbers"`
}

// PreviewResponse is a dry run of Process.
type PreviewResponse struct {
	Summary          PreviewSummary     `json:"summary"`
	NewRowSamples    []RowPreview       `json:"new_row_samples"`
	UpdateSamples    []RowPreview       `json:"update_samples"`
	ErrorSamples     []ErrorPreview     `json:"error_samples"`
	DuplicateSamples []DuplicatePreview `json:"duplicate_samples"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}

const (
	maxRowSamples       = 10
	maxErrorSamples     = 20
	maxDuplicateSamples = 10
)

// Preview validates a mapped upload against the current records without
// writing anything.
func (s *Service) Preview(ctx context.Context, u *Upload) (*PreviewResponse, error) {
	start := time.Now()
	if u.State != StateProcessing {
		return nil, ErrUploadState
	}
	if err := Authorize(u.Principal); err != nil {
		return nil, err
	}

	issuers, err := s.loadIssuers(ctx)
	if err != nil {
		return nil, err
	}

	var existing func(key string) bool
	switch u.RecordType {
	case schema.Issuer:
		if err := checkIssuerOwnership(u.rows, u.Mapping, issuers, u.Principal.Username); err != nil {
			return nil, err
		}
		existing = func(k string) bool { _, ok := issuers[k]; return ok }
	case schema.Security:
		securities, err := s.loadSecurities(ctx)
		if err != nil {
			return nil, err
		}
		existing = func(k string) bool { _, ok := securities[k]; return ok }
	default:
		return nil, ErrUploadState
	}

	resp := &PreviewResponse{
		NewRowSamples:    []RowPreview{},
		UpdateSamples:    []RowPreview{},
		ErrorSamples:     []ErrorPreview{},
		DuplicateSamples: []DuplicatePreview{},
	}
	seen := make(map[string][]int)
	var order []string

	for i, row := range u.rows {
		line := i + 2
		if row.IsBlank() {
			continue
		}
		resp.Summary.TotalRows++

		key, rowErrs, ok := previewRow(u.RecordType, line, row, u.Mapping, issuers)
		if len(rowErrs) > 0 && len(resp.ErrorSamples) < maxErrorSamples {
			msgs := make([]string, len(rowErrs))
			for j := range rowErrs {
				msgs[j] = rowErrs[j].Error()
			}
			resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{LineNumber: line, Key: key, Errors: msgs})
		}
		if !ok {
			resp.Summary.ErrorRows++
			continue
		}

		if _, dup := seen[key]; dup {
			resp.Summary.DuplicateInFile++
			seen[key] = append(seen[key], line)
			continue
		}
		seen[key] = []int{line}
		order = append(order, key)

		sample := RowPreview{LineNumber: line, Key: key, Values: mappedValues(row, u.Mapping)}
		if existing(key) {
			resp.Summary.UpdateRows++
			if len(resp.UpdateSamples) < maxRowSamples {
				resp.UpdateSamples = append(resp.UpdateSamples, sample)
			}
		} else {
			resp.Summary.NewRows++
			if len(resp.NewRowSamples) < maxRowSamples {
				resp.NewRowSamples = append(resp.NewRowSamples, sample)
			}
		}
	}

	for _, key := range order {
		if lines := seen[key]; len(lines) > 1 && len(resp.DuplicateSamples) < maxDuplicateSamples {
			resp.DuplicateSamples = append(resp.DuplicateSamples, DuplicatePreview{Key: key, LineNumbers: lines})
		}
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// previewRow applies the row rules of rt. ok reports whether the row would
// be stored; errs may be non-empty either way.
func previewRow(rt schema.RecordType, line int, row tabular.Row, m Mapping, issuers Issuers) (key string, errs []RowError, ok bool) {
	if rt == schema.Issuer {
		name, present := cell(row, m.Fields, schema.IssuerName)
		if !present || name == "" {
			return "", []RowError{rowError(line, KindMissingField, schema.IssuerName, "Missing %s", schema.IssuerName)}, false
		}
		_, errs = issuerContacts(line, row, m.Fields)
		return name, errs, true
	}

	sec, rerr := securityFromRow(line, row, m, issuers)
	if rerr != nil {
		key, _ = cell(row, m.Fields, schema.SecurityID)
		return key, []RowError{*rerr}, false
	}
	return sec.SecurityID, nil, true
}

// mappedValues returns the row's trimmed values under canonical names and
// custom labels.
func mappedValues(row tabular.Row, m Mapping) map[string]string {
	out := make(map[string]string, len(m.Fields)+len(m.Custom))
	for field, col := range m.Fields {
		if v, ok := row[col]; ok {
			out[field] = strings.TrimSpace(v)
		}
	}
	for label, v := range customValues(row, m.Custom) {
		out[label] = v
	}
	return out
}

// PreviewPending previews a parked upload owned by p.
func (s *Service) PreviewPending(ctx context.Context, id string, p Principal) (*PreviewResponse, error) {
	u, err := s.PendingUpload(id, p)
	if err != nil {
		return nil, err
	}
	return s.Preview(ctx, u)
}
