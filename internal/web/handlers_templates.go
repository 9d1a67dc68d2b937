package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/issuerdesk/internal/core"
	"github.com/JonMunkholm/issuerdesk/internal/schema"
)

// handleListTemplates returns the saved mappings for a record type.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	rt, err := schema.ParseRecordType(chi.URLParam(r, "recordType"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	templates, err := s.service.ListTemplates(r.Context(), rt)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, templates)
}

// handleCreateTemplate saves a mapping under a name. The record type comes
// from the path.
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	rt, err := schema.ParseRecordType(chi.URLParam(r, "recordType"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req core.TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "body must be a JSON object")
		return
	}
	req.RecordType = string(rt)

	tmpl, err := s.service.CreateTemplate(r.Context(), req, principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, tmpl)
}

// handleDeleteTemplate removes a saved mapping.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTemplate(r.Context(), chi.URLParam(r, "id"), principal(r)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
