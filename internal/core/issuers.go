package core

import (
	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// processIssuerRows validates rows and merges the good ones into coll.
// A later row naming the same issuer replaces what an earlier one wrote.
func processIssuerRows(rows Rows, m Mapping, coll Issuers, custodian string) (int, []RowError) {
	processed := 0
	var errs []RowError

	for i, row := range rows {
		line := i + 2
		if row.IsBlank() {
			continue
		}

		name, ok := cell(row, m.Fields, schema.IssuerName)
		if !ok || name == "" {
			errs = append(errs, rowError(line, KindMissingField, schema.IssuerName, "Missing %s", schema.IssuerName))
			continue
		}

		contacts, contactErrs := issuerContacts(line, row, m.Fields)
		errs = append(errs, contactErrs...)

		mergeIssuer(coll, name, custodian, contacts, customValues(row, m.Custom))
		processed++
	}
	return processed, errs
}

// issuerContacts collects the slots that have both a name and an email.
// A slot with a malformed email is reported and left out; the row itself
// still counts.
func issuerContacts(line int, row tabular.Row, mapping map[string]string) ([]Contact, []RowError) {
	contacts := make([]Contact, 0, schema.MaxContacts)
	var errs []RowError

	for slot := 1; slot <= schema.MaxContacts; slot++ {
		name, _ := cell(row, mapping, schema.ContactNameField(slot))
		email, _ := cell(row, mapping, schema.ContactEmailField(slot))
		if name == "" || email == "" {
			continue
		}
		if !ValidEmail(email) {
			errs = append(errs, rowError(line, KindInvalidFormat, schema.ContactEmailField(slot),
				"Invalid email '%s' for contact %d", email, slot))
			continue
		}
		contacts = append(contacts, Contact{Name: name, Email: email})
	}
	return contacts, errs
}
