package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/issuerdesk/internal/core"
	"github.com/JonMunkholm/issuerdesk/internal/schema"
)

// multipartOverhead is allowed on top of the file size for form boundaries
// and other fields.
const multipartOverhead = 1 << 20

// MappingRequest is the body of POST /api/uploads/{id}/mapping.
type MappingRequest struct {
	// Mapping overrides canonical field to column.
	Mapping map[string]string `json:"mapping"`
	// CustomFields maps column to label.
	CustomFields map[string]string `json:"custom_fields"`
}

// MappingResponse reports the resolved mapping and the upload's new state.
type MappingResponse struct {
	Upload *core.Upload       `json:"upload"`
	Result core.MappingResult `json:"result"`
}

// ProcessResponse is the outcome of POST /api/uploads/{id}/process.
type ProcessResponse struct {
	RecordType schema.RecordType `json:"record_type"`
	Processed  int               `json:"processed"`
	Errors     []string          `json:"errors"`
	RowErrors  []core.RowError   `json:"row_errors"`
}

// handleBeginUpload loads a spreadsheet and parks it awaiting a mapping.
func (s *Server) handleBeginUpload(w http.ResponseWriter, r *http.Request) {
	rt, err := schema.ParseRecordType(chi.URLParam(r, "recordType"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, err)
			return
		}
		badRequest(w, r, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errors.New("no file provided"))
		return
	}
	defer file.Close()

	u, err := s.service.BeginUpload(r.Context(), rt, header.Filename, file, principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, u)
}

// handleGetUpload returns a pending upload.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	u, err := s.service.PendingUpload(chi.URLParam(r, "id"), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, u)
}

// handleApplyMapping accepts overrides and custom-field labels. An
// incomplete mapping is a MAP001 error naming the unmapped fields.
func (s *Server) handleApplyMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "body must be a JSON object")
		return
	}
	if len(req.CustomFields) > schema.MaxCustomFields {
		badRequest(w, r, fmt.Sprintf("at most %d custom fields", schema.MaxCustomFields))
		return
	}

	u, res, err := s.service.ApplyMapping(r.Context(), chi.URLParam(r, "id"), principal(r), req.Mapping, req.CustomFields)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, MappingResponse{Upload: u, Result: res})
}

// handlePreview reports what processing would do without writing.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.PreviewPending(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, resp)
}

// handleProcess runs a mapped upload. Row errors are part of a successful
// response; a file-level failure is returned as an error with every row
// error attached.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.ProcessPending(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	rowErrs := res.Errors
	if rowErrs == nil {
		rowErrs = []core.RowError{}
	}
	writeJSON(w, ProcessResponse{
		RecordType: res.RecordType,
		Processed:  res.Processed,
		Errors:     res.ErrorStrings(),
		RowErrors:  rowErrs,
	})
}

// handleUploadHistory lists processed uploads, newest first. mine=true keeps
// only the caller's uploads.
func (s *Server) handleUploadHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultHistoryLimit)

	var who string
	if mine, _ := strconv.ParseBool(r.URL.Query().Get("mine")); mine {
		who = principal(r).Username
	}

	entries, err := s.service.History(r.Context(), who, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, entries)
}
