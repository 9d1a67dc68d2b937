package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/issuerdesk/internal/core"
)

// handleListIssuers lists issuers, optionally only those of one custodian.
func (s *Server) handleListIssuers(w http.ResponseWriter, r *http.Request) {
	issuers, err := s.service.ListIssuers(r.Context(), strings.TrimSpace(r.URL.Query().Get("custodian")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, issuers)
}

// handleListSecurities lists securities filtered by issuer and ISIN.
func (s *Server) handleListSecurities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	securities, err := s.service.FindSecurities(r.Context(), core.SecurityFilter{
		Issuer: strings.TrimSpace(q.Get("issuer")),
		ISIN:   strings.ToUpper(strings.TrimSpace(q.Get("isin"))),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, securities)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// handleHealth reports liveness and upload slot usage for monitoring.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Uploads: s.service.UploadLimiterStatus()})
}

// principal returns the caller attached by middleware.Principal.
func principal(r *http.Request) core.Principal {
	p, _ := core.PrincipalFromContext(r.Context())
	return p
}

// parseIntParam reads a positive integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
