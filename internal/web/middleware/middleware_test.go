package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/issuerdesk/internal/config"
	"github.com/JonMunkholm/issuerdesk/internal/core"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		xff        string
		want       string
	}{
		{name: "trusted proxy, X-Real-IP", remoteAddr: "10.0.0.5:4000", realIP: "203.0.113.7", want: "203.0.113.7"},
		{name: "trusted proxy, first XFF hop", remoteAddr: "10.0.0.5:4000", xff: "203.0.113.7, 10.0.0.9", want: "203.0.113.7"},
		{name: "single host entry", remoteAddr: "192.0.2.1:4000", realIP: "203.0.113.8", want: "203.0.113.8"},
		{name: "untrusted client", remoteAddr: "198.51.100.3:4000", realIP: "203.0.113.7", want: "198.51.100.3"},
		{name: "garbage header", remoteAddr: "10.0.0.5:4000", realIP: "not-an-ip", want: "10.0.0.5"},
	}

	var got string
	h := TrustedRealIP([]string{"10.0.0.0/8", "192.0.2.1", "bogus"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name string
		cfg  config.SecurityConfig
		key  string
		want int
	}{
		{name: "disabled", cfg: config.SecurityConfig{}, want: http.StatusOK},
		{name: "missing key", cfg: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"a"}}, want: http.StatusUnauthorized},
		{name: "wrong key", cfg: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"a"}}, key: "b", want: http.StatusForbidden},
		{name: "second key", cfg: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"a", "b"}}, key: "b", want: http.StatusOK},
		{name: "no keys configured", cfg: config.SecurityConfig{RequireAPIKey: true}, key: "a", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/issuers", nil)
			if tt.key != "" {
				req.Header.Set(HeaderAPIKey, tt.key)
			}
			rec := httptest.NewRecorder()
			APIKeyAuth(&tt.cfg)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPrincipal(t *testing.T) {
	var got core.Principal
	h := Principal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = core.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/issuers", nil)
	req.Header.Set(HeaderPrincipal, " alice ")
	req.Header.Set(HeaderPrincipalRole, "Custodian")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.Principal{Username: "alice", Role: core.RoleCustodian}, got)

	req = httptest.NewRequest(http.MethodGet, "/api/issuers", nil)
	req.Header.Set(HeaderPrincipal, "alice")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing principal","code":"AUTH_MISSING_PRINCIPAL"}`, rec.Body.String())
}
