package bulk

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opusguard/rosterops/errors"
	"github.com/opusguard/rosterops/people"
)

// Identity column keys recognized in import files.
const (
	ColEmployeeID = "employeeId"
	ColWorkEmail  = "workEmail"
)

// ImportIssue flags one problem with an imported row. Field is a field
// key or "identity" for resolution failures.
type ImportIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportRecord is one resolved row of an import file.
type ImportRecord struct {
	RowID              string               `json:"rowId"`
	Email              string               `json:"email,omitempty"`
	ResolvedEmployeeID string               `json:"resolvedEmployeeId,omitempty"`
	Values             map[Field]FieldValue `json:"values"`
	Issues             []ImportIssue        `json:"issues,omitempty"`
}

// Valid reports whether the row resolved to an employee with no issues.
func (r *ImportRecord) Valid() bool {
	return r.ResolvedEmployeeID != "" && len(r.Issues) == 0
}

// ImportSnapshot is the resolved form of an uploaded CSV, frozen onto the
// job at submission.
type ImportSnapshot struct {
	Headers      []string       `json:"headers"`
	Records      []ImportRecord `json:"records"`
	ValidCount   int            `json:"validCount"`
	InvalidCount int            `json:"invalidCount"`
}

// Record returns the record with the given row id, if present.
func (s *ImportSnapshot) Record(rowID string) (*ImportRecord, bool) {
	for i := range s.Records {
		if s.Records[i].RowID == rowID {
			return &s.Records[i], true
		}
	}
	return nil, false
}

// RowIDs lists every record's row id in file order.
func (s *ImportSnapshot) RowIDs() []string {
	out := make([]string, len(s.Records))
	for i := range s.Records {
		out[i] = s.Records[i].RowID
	}
	return out
}

// Recount refreshes ValidCount and InvalidCount from the records. Called
// after remediation mutates a record in place.
func (s *ImportSnapshot) Recount() {
	valid := 0
	for i := range s.Records {
		if s.Records[i].Valid() {
			valid++
		}
	}
	s.ValidCount = valid
	s.InvalidCount = len(s.Records) - valid
}

// normalizeHeader lowercases a header and strips spaces, underscores, and
// hyphens so "Work Email", "work_email", and "workEmail" all match.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch r {
		case ' ', '_', '-':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// headerKey maps a normalized header to its canonical column key, or ""
// when the column is unrecognized.
func headerKey(normalized string) string {
	switch normalized {
	case "id", "employeeid":
		return ColEmployeeID
	case "email", "workemail":
		return ColWorkEmail
	}
	for _, f := range AllFields {
		if normalized == normalizeHeader(string(f)) {
			return string(f)
		}
	}
	return ""
}

// ResolveCSV parses an uploaded CSV and resolves each row against the
// directory. Structural problems (no rows, no identity column) return an
// error; per-row problems are recorded as issues on the row so the import
// can proceed partially.
func ResolveCSV(text string, employees []people.Employee) (*ImportSnapshot, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.WithHint(errors.New("csv has no header row"), "the first row must name the columns")
	}
	if err != nil {
		return nil, errors.Wrap(err, "parse csv header")
	}

	headers := make([]string, len(header))
	keys := make([]string, len(header))
	hasIdentity := false
	for i, h := range header {
		headers[i] = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
		keys[i] = headerKey(normalizeHeader(h))
		if keys[i] == ColEmployeeID || keys[i] == ColWorkEmail {
			hasIdentity = true
		}
	}
	if !hasIdentity {
		return nil, errors.WithHint(
			errors.New("csv has no identity column"),
			"include an employeeId or workEmail column")
	}

	byID := make(map[string]people.Employee, len(employees))
	byEmail := make(map[string]people.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
		byEmail[strings.ToLower(e.Email)] = e
	}

	snap := &ImportSnapshot{Headers: headers}
	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse csv row %d", rowNum+2)
		}
		if blankRow(row) {
			continue
		}
		rowNum++
		snap.Records = append(snap.Records, resolveRow(rowNum, keys, row, byID, byEmail))
	}
	snap.Recount()
	return snap, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func resolveRow(n int, keys, row []string, byID, byEmail map[string]people.Employee) ImportRecord {
	rec := ImportRecord{
		RowID:  fmt.Sprintf("row_%d", n),
		Values: map[Field]FieldValue{},
	}

	cell := func(key string) string {
		for i, k := range keys {
			if k == key && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	id := cell(ColEmployeeID)
	email := cell(ColWorkEmail)
	rec.Email = email
	switch {
	case id != "":
		if e, ok := byID[id]; ok {
			rec.ResolvedEmployeeID = e.ID
		} else {
			rec.Issues = append(rec.Issues, ImportIssue{
				Field:   "identity",
				Message: fmt.Sprintf("No employee with id %q", id),
			})
		}
	case email != "":
		if e, ok := byEmail[strings.ToLower(email)]; ok {
			rec.ResolvedEmployeeID = e.ID
		} else {
			rec.Issues = append(rec.Issues, ImportIssue{
				Field:   "identity",
				Message: fmt.Sprintf("No employee with email %q", email),
			})
		}
	default:
		rec.Issues = append(rec.Issues, ImportIssue{
			Field:   "identity",
			Message: "Row has neither an employee id nor a work email",
		})
	}

	for i, k := range keys {
		if k == "" || k == ColEmployeeID || k == ColWorkEmail || i >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[i])
		if raw == "" {
			continue
		}
		f := Field(k)
		if f.Numeric() {
			num, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
			if err != nil {
				rec.Issues = append(rec.Issues, ImportIssue{
					Field:   k,
					Message: fmt.Sprintf("%s must be a number, got %q", f.Label(), raw),
				})
				continue
			}
			if f == FieldCashComp && num < 0 {
				rec.Issues = append(rec.Issues, ImportIssue{
					Field:   k,
					Message: "Cash compensation cannot be negative",
				})
				continue
			}
			if f == FieldTargetBonusPct && (num < 0 || num > 100) {
				rec.Issues = append(rec.Issues, ImportIssue{
					Field:   k,
					Message: "Target bonus must be between 0 and 100",
				})
				continue
			}
			rec.Values[f] = NumberValue(num)
			continue
		}
		switch {
		case f == FieldLevel && !people.ValidLevel(raw):
			rec.Issues = append(rec.Issues, ImportIssue{
				Field:   k,
				Message: fmt.Sprintf("Level must be one of L1 through L7, got %q", raw),
			})
			continue
		case f == FieldDepartment && !people.ValidDepartment(raw):
			rec.Issues = append(rec.Issues, ImportIssue{
				Field:   k,
				Message: fmt.Sprintf("Unknown department %q", raw),
			})
			continue
		case (f == FieldLocation || f == FieldWorkLocation) && !people.ValidWorkLocation(raw):
			rec.Issues = append(rec.Issues, ImportIssue{
				Field:   k,
				Message: fmt.Sprintf("Unknown work location %q", raw),
			})
			continue
		case f == FieldManagerID:
			if _, ok := byID[raw]; !ok {
				rec.Issues = append(rec.Issues, ImportIssue{
					Field:   k,
					Message: fmt.Sprintf("No employee with id %q to assign as manager", raw),
				})
				continue
			}
		}
		rec.Values[f] = StringValue(raw)
	}

	if rec.ResolvedEmployeeID != "" {
		if v, ok := rec.Values[FieldManagerID]; ok && v.Str == rec.ResolvedEmployeeID {
			rec.Issues = append(rec.Issues, ImportIssue{
				Field:   string(FieldManagerID),
				Message: "An employee cannot be their own manager",
			})
			delete(rec.Values, FieldManagerID)
		}
	}
	return rec
}
