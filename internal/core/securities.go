package core

import (
	"time"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// processSecurityRows validates rows against the issuer collection and
// overwrites coll by security_id for every row that passes.
func processSecurityRows(rows Rows, m Mapping, issuers Issuers, coll Securities, now time.Time) (int, []RowError) {
	processed := 0
	var errs []RowError

	for i, row := range rows {
		line := i + 2
		if row.IsBlank() {
			continue
		}

		sec, rerr := securityFromRow(line, row, m, issuers)
		if rerr != nil {
			errs = append(errs, *rerr)
			continue
		}
		mergeSecurity(coll, sec, now)
		processed++
	}
	return processed, errs
}

// securityRequired is the order in which missing values are reported.
var securityRequired = []string{schema.SecurityID, schema.ISIN, schema.IssuerRef, schema.Description}

// securityFromRow applies the row rules and stops at the first failure.
func securityFromRow(line int, row tabular.Row, m Mapping, issuers Issuers) (Security, *RowError) {
	vals := make(map[string]string, len(securityRequired))
	for _, f := range securityRequired {
		v, ok := cell(row, m.Fields, f)
		if !ok || v == "" {
			e := rowError(line, KindMissingField, f, "Missing %s", f)
			return Security{}, &e
		}
		vals[f] = v
	}

	id, isin, issuer, desc := vals[schema.SecurityID], vals[schema.ISIN], vals[schema.IssuerRef], vals[schema.Description]

	if runeLen(id) > schema.MaxSecurityIDLen {
		e := rowError(line, KindLengthExceeded, schema.SecurityID, "security_id exceeds %d characters", schema.MaxSecurityIDLen)
		return Security{}, &e
	}
	if !ValidISIN(isin) {
		e := rowError(line, KindInvalidFormat, schema.ISIN,
			"Invalid ISIN format. Must be 2 letters followed by 10 alphanumeric characters")
		return Security{}, &e
	}
	owner, ok := issuers[issuer]
	if !ok {
		e := rowError(line, KindUnknownReference, schema.IssuerRef, "Issuer '%s' not found in uploaded issuers", issuer)
		return Security{}, &e
	}
	if runeLen(desc) > schema.MaxDescriptionLen {
		e := rowError(line, KindLengthExceeded, schema.Description, "Description exceeds %d characters", schema.MaxDescriptionLen)
		return Security{}, &e
	}

	currency := DefaultCurrency
	if v, _ := cell(row, m.Fields, schema.Currency); v != "" {
		c, err := NormalizeCurrency(v)
		if err != nil {
			e := rowError(line, KindInvalidFormat, schema.Currency, "Currency must be 3 characters")
			return Security{}, &e
		}
		currency = c
	}

	var maturity string
	if v, _ := cell(row, m.Fields, schema.MaturityDate); v != "" {
		d, err := NormalizeDate(v)
		if err != nil {
			e := rowError(line, KindInvalidFormat, schema.MaturityDate, "Invalid maturity date format")
			return Security{}, &e
		}
		maturity = d
	}

	return Security{
		SecurityID:     id,
		ISIN:           isin,
		Issuer:         issuer,
		IssuerContacts: snapshotContacts(owner.Contacts),
		Currency:       currency,
		Description:    desc,
		MaturityDate:   maturity,
		CustomFields:   customValues(row, m.Custom),
	}, nil
}
