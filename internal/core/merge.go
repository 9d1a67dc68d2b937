package core

import (
	"strings"
	"time"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
)

// mergeIssuer creates or updates name. An existing issuer keeps its
// custodian; contacts and custom fields are replaced.
func mergeIssuer(coll Issuers, name, custodian string, contacts []Contact, custom map[string]string) {
	rec, ok := coll[name]
	if !ok {
		rec = Issuer{Custodian: custodian}
	}
	rec.Contacts = contacts
	rec.CustomFields = custom
	coll[name] = rec
}

// mergeSecurity overwrites the record for sec.SecurityID, carrying over only
// the original creation time.
func mergeSecurity(coll Securities, sec Security, now time.Time) {
	sec.CreatedAt = now
	if prev, ok := coll[sec.SecurityID]; ok && !prev.CreatedAt.IsZero() {
		sec.CreatedAt = prev.CreatedAt
	}
	sec.UpdatedAt = now
	coll[sec.SecurityID] = sec
}

// checkIssuerOwnership fails if any row names an issuer that already belongs
// to a different custodian. It runs before any row is merged so that such a
// file changes nothing.
func checkIssuerOwnership(rows Rows, m Mapping, coll Issuers, custodian string) error {
	for _, row := range rows {
		name, ok := cell(row, m.Fields, schema.IssuerName)
		if !ok || name == "" {
			continue
		}
		if rec, exists := coll[name]; exists && rec.Custodian != custodian {
			return unauthorizedError("Unauthorized: issuer '%s' belongs to another custodian", name)
		}
	}
	return nil
}

// customValues copies the non-blank cells of the custom columns present in
// row under their labels.
func customValues(row map[string]string, custom map[string]string) map[string]string {
	out := make(map[string]string, len(custom))
	for col, label := range custom {
		v, ok := row[col]
		if !ok {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			out[label] = v
		}
	}
	return out
}

func snapshotContacts(contacts []Contact) []Contact {
	out := make([]Contact, len(contacts))
	copy(out, contacts)
	return out
}
