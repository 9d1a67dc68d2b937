package core

import (
	"time"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// Role is what a principal is allowed to do.
type Role string

const (
	RoleCustodian Role = "custodian"
	RoleIssuer    Role = "issuer"
)

// Principal is the authenticated caller, supplied by the auth layer.
type Principal struct {
	Username string `json:"username" validate:"required,max=64"`
	Role     Role   `json:"role" validate:"required,oneof=custodian issuer"`
}

// Contact is one issuer contact slot.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Issuer is keyed by its name. Custodian is fixed when the record is
// created.
type Issuer struct {
	Custodian    string            `json:"custodian"`
	Contacts     []Contact         `json:"contacts"`
	CustomFields map[string]string `json:"custom_fields"`
}

// Security is keyed by SecurityID and replaced whole on every upload.
type Security struct {
	SecurityID     string            `json:"security_id"`
	ISIN           string            `json:"ISIN"`
	Issuer         string            `json:"issuer"`
	IssuerContacts []Contact         `json:"issuer_contacts"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	MaturityDate   string            `json:"maturity_date,omitempty"`
	CustomFields   map[string]string `json:"custom_fields"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Issuers and Securities are the persisted collections.
type (
	Issuers    map[string]Issuer
	Securities map[string]Security
)

// Document names in the store.
const (
	issuersDoc    = "issuers.json"
	securitiesDoc = "securities.json"
	templatesDoc  = "templates.json"
	uploadsDoc    = "uploads.json"
)

// Mapping is a caller-declared field mapping: canonical field to source
// column, plus source column to custom-field label.
type Mapping struct {
	Fields map[string]string `json:"mapping"`
	Custom map[string]string `json:"custom_fields,omitempty"`
}

// Rows is the dataset handed to processing.
type Rows = []tabular.Row

// ProcessResult is the outcome of a processed upload.
type ProcessResult struct {
	RecordType schema.RecordType `json:"record_type"`
	Processed  int               `json:"processed"`
	Errors     []RowError        `json:"errors"`
}

// ErrorStrings renders the row errors as "Row N: message".
func (r ProcessResult) ErrorStrings() []string {
	out := make([]string, len(r.Errors))
	for i := range r.Errors {
		out[i] = r.Errors[i].Error()
	}
	return out
}
