// Package schema declares the canonical columns for each uploadable record
// type. Spreadsheet headers are mapped onto these names before validation.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordType identifies which collection an upload feeds.
type RecordType string

const (
	Issuer   RecordType = "issuer"
	Security RecordType = "security"
)

// ParseRecordType accepts the singular or plural spelling.
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "issuer", "issuers":
		return Issuer, nil
	case "security", "securities":
		return Security, nil
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// Plural is the collection name used in user-facing messages.
func (r RecordType) Plural() string {
	if r == Security {
		return "securities"
	}
	return "issuers"
}

// FieldType is the value class a canonical field holds.
type FieldType int

const (
	TypeText FieldType = iota
	TypeEmail
	TypeCode
	TypeDate
)

// FieldSpec defines a canonical column.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool // must be mapped before processing starts
	MaxLen   int  // in characters; zero means unbounded
}

// Canonical field names.
const (
	IssuerName   = "issuer_name"
	SecurityID   = "security_id"
	ISIN         = "ISIN"
	IssuerRef    = "issuer"
	Description  = "description"
	Currency     = "currency"
	MaturityDate = "maturity_date"
)

const (
	// MaxContacts is the number of contact slots on an issuer.
	MaxContacts = 5
	// MaxCustomFields caps how many extra columns one upload may capture.
	MaxCustomFields = 8

	MaxSecurityIDLen  = 13
	MaxDescriptionLen = 256
)

// ContactNameField returns the canonical name column of contact slot i (1-based).
func ContactNameField(i int) string { return "contact_name_" + strconv.Itoa(i) }

// ContactEmailField returns the canonical email column of contact slot i (1-based).
func ContactEmailField(i int) string { return "contact_email_" + strconv.Itoa(i) }

// IssuerFieldSpecs lists issuer columns in declaration order.
var IssuerFieldSpecs = issuerSpecs()

func issuerSpecs() []FieldSpec {
	specs := []FieldSpec{{Name: IssuerName, Type: TypeText, Required: true}}
	for i := 1; i <= MaxContacts; i++ {
		specs = append(specs,
			FieldSpec{Name: ContactNameField(i), Type: TypeText},
			FieldSpec{Name: ContactEmailField(i), Type: TypeEmail},
		)
	}
	return specs
}

// SecurityFieldSpecs lists security columns in declaration order.
var SecurityFieldSpecs = []FieldSpec{
	{Name: SecurityID, Type: TypeText, Required: true, MaxLen: MaxSecurityIDLen},
	{Name: ISIN, Type: TypeCode, Required: true},
	{Name: IssuerRef, Type: TypeText, Required: true},
	{Name: Description, Type: TypeText, Required: true, MaxLen: MaxDescriptionLen},
	{Name: Currency, Type: TypeCode},
	{Name: MaturityDate, Type: TypeDate},
}

// Fields returns the specs for a record type, or nil if it is unknown.
func Fields(rt RecordType) []FieldSpec {
	switch rt {
	case Issuer:
		return IssuerFieldSpecs
	case Security:
		return SecurityFieldSpecs
	}
	return nil
}

// Required returns the required field names in declaration order.
func Required(rt RecordType) []string {
	return names(Fields(rt), true)
}

// Optional returns the optional field names in declaration order.
func Optional(rt RecordType) []string {
	return names(Fields(rt), false)
}

// Lookup finds the field named name.
func Lookup(rt RecordType, name string) (FieldSpec, bool) {
	for _, f := range Fields(rt) {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func names(specs []FieldSpec, required bool) []string {
	var out []string
	for _, f := range specs {
		if f.Required == required {
			out = append(out, f.Name)
		}
	}
	return out
}
