package core

// # Error Codes Reference
//
// Every error that reaches a user carries a code they can quote to support.
//
// # Mapping Errors (MAP001)
//
//	MAP001 - Required fields are not mapped to a column
//	         Action: Map every required field before processing
//
// # Row Errors (ROW001-ROW004)
//
// Collected per row; the rest of the file still processes.
//
//	ROW001 - Missing field          ROW003 - Value too long
//	ROW002 - Invalid format         ROW004 - Unknown reference (e.g. issuer)
//
// # Authorization (AUTH001)
//
//	AUTH001 - Principal may not upload, or an issuer belongs to another custodian
//
// # Processing (PROC001)
//
//	PROC001 - No rows could be processed; the message lists the first errors
//
// # File Errors (FILE001-FILE006)
//
//	FILE001 - File too large        FILE004 - No file provided
//	FILE002 - Invalid CSV           FILE005 - Empty file
//	FILE003 - Encoding error        FILE006 - Unsupported file type
//
// # Upload Errors (UPL002-UPL006)
//
//	UPL002 - Too many uploads       UPL005 - Deadline exceeded
//	UPL003 - Upload not found       UPL006 - Upload in the wrong step
//	UPL004 - Request cancelled
//
// # Store Errors (STORE001)
//
//	STORE001 - Records could not be read or written
//
// # Templates and Requests (TPL001-TPL002, REQ001-REQ002)
//
//	TPL001 - Template not found     REQ001 - Invalid request fields
//	TPL002 - Template name taken    REQ002 - Unknown record type
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error; check logs for the technical error
//
// # Matching
//
// Typed errors (RowError, FileError) map by kind. Other errors are checked
// with errors.Is against known sentinels, then by case-insensitive
// substring. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// ErrStore wraps failures of the document store.
var ErrStore = errors.New("store failure")

var kindMessages = map[ErrorKind]UserMessage{
	KindMissingRequiredField: {
		Message: "Required fields are not mapped to a column",
		Action:  "Map every required field before processing",
		Code:    "MAP001",
	},
	KindMissingField: {
		Message: "A required value is empty",
		Action:  "Fill in the missing cell and upload again",
		Code:    "ROW001",
	},
	KindInvalidFormat: {
		Message: "A value has an invalid format",
		Action:  "Check ISIN, email, currency and date formats",
		Code:    "ROW002",
	},
	KindLengthExceeded: {
		Message: "A value is too long",
		Action:  "Shorten the value to the allowed length",
		Code:    "ROW003",
	},
	KindUnknownReference: {
		Message: "A referenced issuer does not exist",
		Action:  "Upload the issuer file first",
		Code:    "ROW004",
	},
	KindUnauthorizedPrincipal: {
		Message: "You are not allowed to perform this upload",
		Action:  "Sign in as the custodian that owns these issuers",
		Code:    "AUTH001",
	},
	KindNoRowsProcessed: {
		Message: "No rows could be processed",
		Action:  "Fix the listed row errors and upload again",
		Code:    "PROC001",
	},
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{tabular.ErrFileTooLarge, UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{tabular.ErrTooManyRows, UserMessage{
		Message: "File has too many rows",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{tabular.ErrMalformed, UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure file is comma-separated with consistent columns",
		Code:    "FILE002",
	}},
	{tabular.ErrEmptyFile, UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a file with a header row",
		Code:    "FILE005",
	}},
	{tabular.ErrUnsupportedFormat, UserMessage{
		Message: "Unsupported file type",
		Action:  "Upload a .csv or .xlsx file",
		Code:    "FILE006",
	}},
	{ErrTooManyUploads, UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{ErrUploadNotFound, UserMessage{
		Message: "Upload session not found",
		Action:  "The upload may have expired. Please start a new upload",
		Code:    "UPL003",
	}},
	{ErrUploadState, UserMessage{
		Message: "This upload is not ready for that step",
		Action:  "Apply a complete mapping first, or start a new upload if it was already processed",
		Code:    "UPL006",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL005",
	}},
	{ErrStore, UserMessage{
		Message: "Records could not be read or saved",
		Action:  "Please try again in a few moments",
		Code:    "STORE001",
	}},
	{ErrTemplateNotFound, UserMessage{
		Message: "Template not found",
		Action:  "Refresh the template list",
		Code:    "TPL001",
	}},
}

// errorPattern maps a lower-case substring to a message for errors that
// arrive untyped, e.g. from a request parser.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "already exists",
		msg: UserMessage{
			Message: "A template with this name already exists",
			Action:  "Choose a different template name",
			Code:    "TPL002",
		},
	},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request is missing or has invalid fields",
			Action:  "Check the request and try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "unknown record type",
		msg: UserMessage{
			Message: "Unknown record type",
			Action:  "Use issuers or securities",
			Code:    "REQ002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a .csv or .xlsx file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	err := missingRequiredError([]string{"issuer_name"})
//	msg := MapError(err)
//	// msg.Code == "MAP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if kind, ok := KindOf(err); ok {
		if msg, ok := kindMessages[kind]; ok {
			return msg
		}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err and keeps the original for logging.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
