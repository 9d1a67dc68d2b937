package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
)

// TemplateMatchThreshold is the minimum score for a template to be considered a match.
const TemplateMatchThreshold = 0.7

// ErrTemplateNotFound is returned for an unknown template ID.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a saved mapping for spreadsheets with a recurring layout.
type Template struct {
	ID         string            `json:"id"`
	RecordType schema.RecordType `json:"record_type"`
	Name       string            `json:"name"`
	Mapping    map[string]string `json:"mapping"`
	Custom     map[string]string `json:"custom_fields,omitempty"`
	// Headers are the spreadsheet columns the template was saved from.
	Headers   []string  `json:"headers"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateMatch is a template scored against an upload's headers.
type TemplateMatch struct {
	Template   Template `json:"template"`
	MatchScore float64  `json:"match_score"`
}

// TemplateRequest is the input for CreateTemplate.
type TemplateRequest struct {
	Name       string            `json:"name" validate:"required,max=100"`
	RecordType string            `json:"record_type" validate:"required,record_type"`
	Mapping    map[string]string `json:"mapping" validate:"required,min=1"`
	Custom     map[string]string `json:"custom_fields"`
	Headers    []string          `json:"headers" validate:"required,min=1,dive,required"`
}

type templateSet map[string]Template

// CreateTemplate saves a new template. Names are unique per record type.
func (s *Service) CreateTemplate(ctx context.Context, req TemplateRequest, p Principal) (*Template, error) {
	if err := Authorize(p); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	rt := schema.RecordType(req.RecordType)
	for field := range req.Mapping {
		if _, ok := schema.Lookup(rt, field); !ok {
			return nil, fmt.Errorf("invalid request: %q is not a %s field", field, rt)
		}
	}

	unlock, err := s.store.Lock(ctx)
	if err != nil {
		return nil, storeError("lock", err)
	}
	defer unlock()

	set, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range set {
		if t.RecordType == rt && strings.EqualFold(t.Name, req.Name) {
			return nil, fmt.Errorf("template '%s' already exists for %s", req.Name, rt.Plural())
		}
	}

	now := s.now()
	t := Template{
		ID:         uuid.NewString(),
		RecordType: rt,
		Name:       req.Name,
		Mapping:    req.Mapping,
		Custom:     req.Custom,
		Headers:    req.Headers,
		CreatedBy:  p.Username,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	set[t.ID] = t
	if err := s.store.Save(ctx, templatesDoc, set); err != nil {
		return nil, storeError("save templates", err)
	}
	return &t, nil
}

// ListTemplates returns the templates for rt sorted by name.
func (s *Service) ListTemplates(ctx context.Context, rt schema.RecordType) ([]Template, error) {
	set, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(set))
	for _, t := range set {
		if t.RecordType == rt {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string, p Principal) error {
	if err := Authorize(p); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid template ID: %w", err)
	}

	unlock, err := s.store.Lock(ctx)
	if err != nil {
		return storeError("lock", err)
	}
	defer unlock()

	set, err := s.loadTemplates(ctx)
	if err != nil {
		return err
	}
	if _, ok := set[id]; !ok {
		return ErrTemplateNotFound
	}
	delete(set, id)
	if err := s.store.Save(ctx, templatesDoc, set); err != nil {
		return storeError("save templates", err)
	}
	return nil
}

// MatchTemplates finds templates for rt whose saved headers mostly appear in
// headers, best match first.
func (s *Service) MatchTemplates(ctx context.Context, rt schema.RecordType, headers []string) ([]TemplateMatch, error) {
	templates, err := s.ListTemplates(ctx, rt)
	if err != nil {
		return nil, err
	}

	var matches []TemplateMatch
	for _, t := range templates {
		score := matchTemplateHeaders(headers, t.Headers)
		if score >= TemplateMatchThreshold {
			matches = append(matches, TemplateMatch{Template: t, MatchScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches, nil
}

// matchTemplateHeaders returns the share of template headers present in
// the upload, compared case-insensitively.
func matchTemplateHeaders(uploadHeaders, templateHeaders []string) float64 {
	if len(templateHeaders) == 0 {
		return 0
	}

	present := make(map[string]bool, len(uploadHeaders))
	for _, h := range uploadHeaders {
		present[headerKey(h)] = true
	}

	matched := 0
	for _, h := range templateHeaders {
		if present[headerKey(h)] {
			matched++
		}
	}
	return float64(matched) / float64(len(templateHeaders))
}

func (s *Service) loadTemplates(ctx context.Context) (templateSet, error) {
	set := templateSet{}
	if err := s.loadDoc(ctx, templatesDoc, &set); err != nil {
		return nil, err
	}
	if set == nil {
		set = templateSet{}
	}
	return set, nil
}
