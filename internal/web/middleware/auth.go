package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/issuerdesk/internal/config"
	"github.com/JonMunkholm/issuerdesk/internal/core"
)

// Headers set by the authenticating proxy in front of the API.
const (
	HeaderPrincipal     = "X-Principal"
	HeaderPrincipalRole = "X-Principal-Role"
	HeaderAPIKey        = "X-API-Key"
)

// APIKeyAuth returns middleware that validates X-API-Key header against configured keys.
// If RequireAPIKey is false, all requests pass through.
// If RequireAPIKey is true but no keys are configured, all requests are rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get(HeaderAPIKey)
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			if !isValidAPIKey(apiKey, cfg.APIKeys) {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidAPIKey checks if the provided key matches any configured key.
// Every key is compared so the time taken does not depend on which matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}

// Principal attaches the caller named by the proxy headers to the request
// context. Role checks are left to core.Authorize; only presence is
// required here.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := core.Principal{
			Username: strings.TrimSpace(r.Header.Get(HeaderPrincipal)),
			Role:     core.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderPrincipalRole)))),
		}
		if p.Username == "" || p.Role == "" {
			slog.Warn("auth: missing principal",
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
			)
			writeAuthError(w, http.StatusUnauthorized, "missing principal", "AUTH_MISSING_PRINCIPAL")
			return
		}
		notePrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(core.ContextWithPrincipal(r.Context(), p)))
	})
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
