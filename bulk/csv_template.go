package bulk

import (
	"encoding/csv"
	"strings"

	"github.com/opusguard/rosterops/errors"
	"github.com/opusguard/rosterops/people"
)

// TemplateHeaders returns the column headers for an import template: both
// identity columns followed by the requested fields, or every editable
// field when fields is empty. The location alias is omitted since
// workLocation covers it.
func TemplateHeaders(fields []Field) []string {
	if len(fields) == 0 {
		for _, f := range AllFields {
			if f == FieldLocation {
				continue
			}
			fields = append(fields, f)
		}
	}
	headers := []string{ColEmployeeID, ColWorkEmail}
	for _, f := range fields {
		headers = append(headers, string(f))
	}
	return headers
}

// EmployeeRow renders one employee as a template row matching
// TemplateHeaders(fields), pre-filled with current values.
func EmployeeRow(e people.Employee, fields []Field) []string {
	if len(fields) == 0 {
		for _, f := range AllFields {
			if f == FieldLocation {
				continue
			}
			fields = append(fields, f)
		}
	}
	row := []string{e.ID, e.Email}
	for _, f := range fields {
		row = append(row, CurrentValue(e, f).Display())
	}
	return row
}

// MakeTemplateCSV builds a ready-to-edit import file for the given
// employees and fields. Empty fields means every editable field.
func MakeTemplateCSV(employees []people.Employee, fields []Field) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(TemplateHeaders(fields)); err != nil {
		return "", errors.Wrap(err, "write template header")
	}
	for _, e := range employees {
		if err := w.Write(EmployeeRow(e, fields)); err != nil {
			return "", errors.Wrapf(err, "write template row for %s", e.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, "flush template")
	}
	return b.String(), nil
}
