package web

// errors.go turns service errors into JSON responses.
//
// The technical error is logged with the request ID; the client gets the
// coded message from core.MapError plus, for typed failures, the specific
// detail (unmapped fields, row errors) it needs to fix the upload.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/issuerdesk/internal/core"
	"github.com/JonMunkholm/issuerdesk/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Fields  []string `json:"fields,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// statusByCode maps user-facing codes to HTTP statuses. Codes not listed
// fall back by prefix in statusFor.
var statusByCode = map[string]int{
	"MAP001":   http.StatusUnprocessableEntity,
	"PROC001":  http.StatusUnprocessableEntity,
	"AUTH001":  http.StatusForbidden,
	"FILE001":  http.StatusRequestEntityTooLarge,
	"UPL002":   http.StatusServiceUnavailable,
	"UPL003":   http.StatusNotFound,
	"UPL004":   http.StatusBadRequest,
	"UPL005":   http.StatusGatewayTimeout,
	"UPL006":   http.StatusConflict,
	"TPL001":   http.StatusNotFound,
	"TPL002":   http.StatusConflict,
	"STORE001": http.StatusInternalServerError,
	"ERR000":   http.StatusInternalServerError,
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	switch {
	case strings.HasPrefix(code, "ROW"):
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(code, "FILE"), strings.HasPrefix(code, "REQ"):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its mapped response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := statusFor(msg.Code)

	log := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request error")
	} else {
		log.Warn("request rejected")
	}

	writeJSONStatus(w, status, errorResponse(err, msg))
}

// errorResponse fills in the detail a client can act on. Untyped errors
// only expose the mapped message.
func errorResponse(err error, msg core.UserMessage) ErrorResponse {
	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}

	var fe *core.FileError
	if errors.As(err, &fe) {
		resp.Error = fe.Message
		resp.Fields = fe.Fields
		for i := range fe.RowErrors {
			resp.Errors = append(resp.Errors, fe.RowErrors[i].Error())
		}
		return resp
	}

	// Request validation messages are built by core and safe to echo.
	if strings.HasPrefix(msg.Code, "REQ") || msg.Code == "TPL002" {
		resp.Error = err.Error()
	}
	return resp
}

// badRequest reports a malformed request body or parameter as REQ001.
func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	respondError(w, r, errors.New("invalid request: "+detail))
}
