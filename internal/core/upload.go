package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/issuerdesk/internal/logging"
	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// UploadState is the step an upload is waiting on.
type UploadState string

const (
	// StateMapping waits for a mapping that covers every required field.
	StateMapping UploadState = "mapping"
	// StateProcessing has an accepted mapping. It is terminal: Process
	// runs once and records the result.
	StateProcessing UploadState = "processing"
)

// Upload carries one file from loading through processing. The caller
// holds it between steps; the HTTP driver parks it in the pending registry.
type Upload struct {
	ID         string            `json:"id"`
	RecordType schema.RecordType `json:"record_type"`
	FileName   string            `json:"file_name"`
	Principal  Principal         `json:"principal"`
	Columns    []string          `json:"columns"`
	RowCount   int               `json:"row_count"`
	State      UploadState       `json:"state"`
	// Candidate is the exact-name mapping proposed when the file loaded.
	Candidate MappingResult   `json:"candidate"`
	Templates []TemplateMatch `json:"templates,omitempty"`
	Mapping   Mapping         `json:"applied_mapping"`
	Result    *ProcessResult  `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`

	rows Rows
}

// NewUpload starts an upload of table in the mapping step.
func NewUpload(rt schema.RecordType, table *tabular.Table, p Principal, now time.Time) *Upload {
	return &Upload{
		ID:         uuid.NewString(),
		RecordType: rt,
		FileName:   table.FileName,
		Principal:  p,
		Columns:    table.Columns,
		RowCount:   len(table.Rows),
		State:      StateMapping,
		Candidate:  MapRecordFields(rt, table.Columns, nil, nil),
		CreatedAt:  now,
		rows:       table.Rows,
	}
}

// clone returns a shallow copy. Uploads are only changed by assigning whole
// fields, never by editing a slice or map in place, so the copy is a
// consistent snapshot.
func (u *Upload) clone() *Upload {
	c := *u
	return &c
}

// ApplyMapping resolves override and custom against the upload's columns.
// The upload moves to StateProcessing only when every required field is
// mapped; otherwise it stays in StateMapping and the MissingRequiredField
// error is returned with the result.
func (u *Upload) ApplyMapping(override, custom map[string]string) (MappingResult, error) {
	if u.State != StateMapping {
		return MappingResult{}, ErrUploadState
	}
	res := MapRecordFields(u.RecordType, u.Columns, override, custom)
	if err := res.Err(); err != nil {
		return res, err
	}
	u.Mapping = res.Mapping()
	u.State = StateProcessing
	return res, nil
}

// BeginUpload loads a spreadsheet for p and parks it awaiting a mapping.
func (s *Service) BeginUpload(ctx context.Context, rt schema.RecordType, fileName string, r io.Reader, p Principal) (*Upload, error) {
	if err := Authorize(p); err != nil {
		return nil, err
	}
	if schema.Fields(rt) == nil {
		return nil, errors.New("unknown record type")
	}

	table, err := tabular.Load(r, fileName, s.load)
	if err != nil {
		return nil, err
	}

	u := NewUpload(rt, table, p, s.now())
	log := logging.WithFields(ctx, "upload_id", u.ID, "record_type", rt, "principal", p.Username)

	if matches, err := s.MatchTemplates(ctx, rt, u.Columns); err != nil {
		log.Warn("template matching failed", "error", err)
	} else {
		u.Templates = matches
	}

	s.pending.put(u)
	log.Info("upload loaded", "file", u.FileName, "rows", u.RowCount, "columns", len(u.Columns),
		"missing_required", u.Candidate.MissingRequired)
	return u, nil
}

// PendingUpload returns a snapshot of a parked upload owned by p.
func (s *Service) PendingUpload(id string, p Principal) (*Upload, error) {
	u, ok := s.pending.get(id)
	if !ok || u.Principal.Username != p.Username {
		return nil, ErrUploadNotFound
	}
	return u, nil
}

// ApplyMapping applies a mapping to a parked upload.
func (s *Service) ApplyMapping(ctx context.Context, id string, p Principal, override, custom map[string]string) (*Upload, MappingResult, error) {
	var (
		u   *Upload
		res MappingResult
		err error
	)
	found := s.pending.update(id, func(pu *Upload) {
		if pu.Principal.Username != p.Username {
			err = ErrUploadNotFound
			return
		}
		res, err = pu.ApplyMapping(override, custom)
		u = pu.clone()
	})
	if !found {
		return nil, MappingResult{}, ErrUploadNotFound
	}
	if err != nil {
		logging.WithFields(ctx, "upload_id", id).Debug("mapping rejected", "error", err)
	}
	return u, res, err
}

// ProcessPending removes a parked upload and processes it. Transient
// failures put it back so the caller can retry.
func (s *Service) ProcessPending(ctx context.Context, id string, p Principal) (ProcessResult, error) {
	u, ok := s.pending.take(id)
	if !ok || u.Principal.Username != p.Username {
		if ok {
			s.pending.put(u)
		}
		return ProcessResult{}, ErrUploadNotFound
	}

	res, err := s.Process(ctx, u)
	if err != nil && u.Result == nil {
		s.pending.put(u)
	}
	return res, err
}

// Process runs an upload whose mapping has been accepted. Successful rows
// are persisted even when others fail; the upload is then recorded in the
// history.
func (s *Service) Process(ctx context.Context, u *Upload) (ProcessResult, error) {
	if u.State != StateProcessing || u.Result != nil {
		return ProcessResult{}, ErrUploadState
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return ProcessResult{}, err
	}
	defer s.limiter.Release()

	log := logging.WithFields(ctx, "upload_id", u.ID, "record_type", u.RecordType, "principal", u.Principal.Username)
	start := time.Now()
	log.Info("upload processing started", "rows", len(u.rows))

	res, err := s.processRows(ctx, u.RecordType, u.rows, u.Mapping, u.Principal)
	if len(res.Errors) > 0 {
		log.Debug("row errors", "count", len(res.Errors))
	}

	var fe *FileError
	if err != nil && !errors.As(err, &fe) {
		// Store or context failure; the upload may be retried.
		log.Error("upload processing failed", "error", err)
		return res, err
	}

	u.Result = &res
	if err != nil {
		log.Warn("upload rejected", "kind", fe.Kind, "error", err)
		return res, err
	}

	if herr := s.recordHistory(ctx, u, res); herr != nil {
		log.Error("record upload history", "error", herr)
	}
	log.Info("upload processing finished",
		"processed", res.Processed,
		"failed", len(res.Errors),
		"duration", time.Since(start),
	)
	return res, nil
}
