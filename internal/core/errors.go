package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a processing failure.
type ErrorKind string

const (
	KindMissingRequiredField  ErrorKind = "missing_required_field"
	KindMissingField          ErrorKind = "missing_field"
	KindInvalidFormat         ErrorKind = "invalid_format"
	KindLengthExceeded        ErrorKind = "length_exceeded"
	KindUnknownReference      ErrorKind = "unknown_reference"
	KindUnauthorizedPrincipal ErrorKind = "unauthorized_principal"
	KindNoRowsProcessed       ErrorKind = "no_rows_processed"
)

// Sentinels for errors.Is. RowError and FileError match the sentinel of
// their kind.
var (
	ErrMissingRequiredField  = errors.New("missing required field mapping")
	ErrMissingField          = errors.New("missing field")
	ErrInvalidFormat         = errors.New("invalid format")
	ErrLengthExceeded        = errors.New("length exceeded")
	ErrUnknownReference      = errors.New("unknown reference")
	ErrUnauthorizedPrincipal = errors.New("unauthorized principal")
	ErrNoRowsProcessed       = errors.New("no rows processed")

	ErrUploadNotFound = errors.New("upload not found")
	ErrUploadState    = errors.New("upload is not awaiting this step")
)

var kindSentinels = map[ErrorKind]error{
	KindMissingRequiredField:  ErrMissingRequiredField,
	KindMissingField:          ErrMissingField,
	KindInvalidFormat:         ErrInvalidFormat,
	KindLengthExceeded:        ErrLengthExceeded,
	KindUnknownReference:      ErrUnknownReference,
	KindUnauthorizedPrincipal: ErrUnauthorizedPrincipal,
	KindNoRowsProcessed:       ErrNoRowsProcessed,
}

// RowError is a validation failure scoped to one spreadsheet row. Row is the
// 1-based line in the file, so the first data row is 2.
type RowError struct {
	Row     int       `json:"row"`
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

func (e *RowError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e RowError) String() string {
	return e.Error()
}

func rowError(row int, kind ErrorKind, field, format string, args ...any) RowError {
	return RowError{Row: row, Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// FileError aborts a whole upload before anything is persisted.
type FileError struct {
	Kind    ErrorKind
	Message string
	// Fields lists unmapped required fields for KindMissingRequiredField.
	Fields []string
	// RowErrors carries every row failure for KindNoRowsProcessed.
	RowErrors []RowError
	Err       error
}

func (e *FileError) Error() string {
	return e.Message
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *FileError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of a RowError or FileError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	var re *RowError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

func missingRequiredError(fields []string) *FileError {
	return &FileError{
		Kind:    KindMissingRequiredField,
		Message: "Missing required field mapping: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

func unauthorizedError(format string, args ...any) *FileError {
	return &FileError{
		Kind:    KindUnauthorizedPrincipal,
		Message: fmt.Sprintf(format, args...),
	}
}

// maxSummarizedErrors bounds how many row errors a NoRowsProcessed message
// spells out.
const maxSummarizedErrors = 5

func noRowsProcessedError(plural string, rowErrs []RowError) *FileError {
	fe := &FileError{Kind: KindNoRowsProcessed, RowErrors: rowErrs}
	if len(rowErrs) == 0 {
		fe.Message = fmt.Sprintf("No valid %s found in the file", plural)
		return fe
	}

	shown := rowErrs
	if len(shown) > maxSummarizedErrors {
		shown = shown[:maxSummarizedErrors]
	}
	parts := make([]string, len(shown))
	for i := range shown {
		parts[i] = shown[i].Error()
	}

	msg := fmt.Sprintf("No %s were processed due to validation errors: %s", plural, strings.Join(parts, "; "))
	if extra := len(rowErrs) - len(shown); extra > 0 {
		msg += fmt.Sprintf(" and %d more errors", extra)
	}
	fe.Message = msg
	return fe
}
