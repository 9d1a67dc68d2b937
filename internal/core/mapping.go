package core

import (
	"strings"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
)

// MappingResult is the resolved mapping for one upload.
type MappingResult struct {
	// FieldMapping maps canonical field to source column.
	FieldMapping map[string]string `json:"mapping"`
	// CustomFields maps source column to custom-field label.
	CustomFields map[string]string `json:"custom_fields"`
	// MissingRequired lists unmapped required fields in declaration order.
	MissingRequired []string `json:"missing_required,omitempty"`
}

// Err returns a MissingRequiredField error when any required field is
// unmapped.
func (r MappingResult) Err() error {
	if len(r.MissingRequired) == 0 {
		return nil
	}
	return missingRequiredError(r.MissingRequired)
}

// Mapping returns the result in the form processing consumes.
func (r MappingResult) Mapping() Mapping {
	return Mapping{Fields: r.FieldMapping, Custom: r.CustomFields}
}

// MapFields resolves canonical fields onto source columns. A field maps to a
// column with exactly its name unless override names a different column; an
// empty override value unmaps the field, and so does an override naming a
// column the file does not have. Override keys that are not canonical fields
// are ignored.
func MapFields(required, optional, sourceColumns []string, override, custom map[string]string) MappingResult {
	columns := make(map[string]bool, len(sourceColumns))
	for _, c := range sourceColumns {
		columns[c] = true
	}

	res := MappingResult{
		FieldMapping: make(map[string]string),
		CustomFields: make(map[string]string),
	}

	resolve := func(field string) {
		col, overridden := override[field]
		if !overridden {
			if columns[field] {
				res.FieldMapping[field] = field
			}
			return
		}
		if col = strings.TrimSpace(col); columns[col] {
			res.FieldMapping[field] = col
		}
	}
	for _, f := range required {
		resolve(f)
	}
	for _, f := range optional {
		resolve(f)
	}

	for _, f := range required {
		if _, ok := res.FieldMapping[f]; !ok {
			res.MissingRequired = append(res.MissingRequired, f)
		}
	}

	for col, label := range custom {
		if col == "" {
			continue
		}
		if label = strings.TrimSpace(label); label == "" {
			label = col
		}
		res.CustomFields[col] = label
	}
	return res
}

// MapRecordFields is MapFields with the canonical fields of rt.
func MapRecordFields(rt schema.RecordType, sourceColumns []string, override, custom map[string]string) MappingResult {
	return MapFields(schema.Required(rt), schema.Optional(rt), sourceColumns, override, custom)
}
