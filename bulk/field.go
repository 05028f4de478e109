// Package bulk implements the bulk-change job engine: drafts, validation,
// CSV import resolution, the propagation job runners, the persistent job
// store, scheduling, and retry/remediation.
package bulk

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/opusguard/rosterops/errors"
	"github.com/opusguard/rosterops/people"
)

// Field identifies one editable employee attribute.
type Field string

// The editable field vocabulary. Order here is the canonical display and
// CSV template column order.
const (
	FieldDepartment     Field = "department"
	FieldLocation       Field = "location"
	FieldWorkLocation   Field = "workLocation"
	FieldManagerID      Field = "managerId"
	FieldTeam           Field = "team"
	FieldTitle          Field = "title"
	FieldLevel          Field = "level"
	FieldCashComp       Field = "cashComp"
	FieldTargetBonusPct Field = "targetBonusPct"
	FieldPayPeriod      Field = "payPeriod"
	FieldStatus         Field = "status"
	FieldStartDate      Field = "startDate"
	FieldEndDate        Field = "endDate"
	FieldEmploymentType Field = "employmentType"
	FieldJurisdiction   Field = "jurisdiction"
	FieldLegalEntity    Field = "legalEntity"
)

// AllFields lists every editable field in canonical order.
var AllFields = []Field{
	FieldDepartment,
	FieldLocation,
	FieldWorkLocation,
	FieldManagerID,
	FieldTeam,
	FieldTitle,
	FieldLevel,
	FieldCashComp,
	FieldTargetBonusPct,
	FieldPayPeriod,
	FieldStatus,
	FieldStartDate,
	FieldEndDate,
	FieldEmploymentType,
	FieldJurisdiction,
	FieldLegalEntity,
}

// FieldLabels maps fields to human-readable names for job display and CLI
// output.
var FieldLabels = map[Field]string{
	FieldDepartment:     "Department",
	FieldLocation:       "Location",
	FieldWorkLocation:   "Work location",
	FieldManagerID:      "Manager",
	FieldTeam:           "Team",
	FieldTitle:          "Title",
	FieldLevel:          "Level",
	FieldCashComp:       "Cash comp",
	FieldTargetBonusPct: "Target bonus %",
	FieldPayPeriod:      "Pay period",
	FieldStatus:         "Status",
	FieldStartDate:      "Start date",
	FieldEndDate:        "End date",
	FieldEmploymentType: "Employment type",
	FieldJurisdiction:   "Jurisdiction",
	FieldLegalEntity:    "Legal entity",
}

// Label returns the human-readable name for f, falling back to the raw key.
func (f Field) Label() string {
	if l, ok := FieldLabels[f]; ok {
		return l
	}
	return string(f)
}

// Numeric reports whether f carries a numeric value.
func (f Field) Numeric() bool {
	return f == FieldCashComp || f == FieldTargetBonusPct
}

// ValidField reports whether f is in the editable vocabulary.
func ValidField(f Field) bool {
	_, ok := FieldLabels[f]
	return ok
}

// ValueKind discriminates the FieldValue variant.
type ValueKind int

const (
	// ValueAbsent is the zero FieldValue: no value set.
	ValueAbsent ValueKind = iota
	// ValueString carries a string (enum members, dates, free text).
	ValueString
	// ValueNumber carries a float64 (cashComp, targetBonusPct).
	ValueNumber
)

// FieldValue is a tagged variant holding one field's value. Numeric fields
// carry numbers; everything else carries strings. The zero value means
// "not set".
type FieldValue struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// StringValue builds a string-kinded FieldValue.
func StringValue(s string) FieldValue { return FieldValue{Kind: ValueString, Str: s} }

// NumberValue builds a number-kinded FieldValue.
func NumberValue(n float64) FieldValue { return FieldValue{Kind: ValueNumber, Num: n} }

// IsZero reports whether the value is absent or an empty string.
// Empty strings do not participate in effective-value precedence.
func (v FieldValue) IsZero() bool {
	switch v.Kind {
	case ValueAbsent:
		return true
	case ValueString:
		return v.Str == ""
	default:
		return false
	}
}

// Equal reports whether two values are the same variant and payload.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Kind != o.Kind {
		return v.IsZero() && o.IsZero()
	}
	switch v.Kind {
	case ValueString:
		return v.Str == o.Str
	case ValueNumber:
		return v.Num == o.Num
	default:
		return true
	}
}

// Display renders the value for audit messages and CLI tables.
func (v FieldValue) Display() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// MarshalJSON encodes numbers as JSON numbers, strings as JSON strings,
// and absent values as null.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueString:
		return json.Marshal(v.Str)
	case ValueNumber:
		return json.Marshal(v.Num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, string, or null.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = FieldValue{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "unmarshal field value string")
		}
		*v = StringValue(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrap(err, "unmarshal field value number")
	}
	*v = NumberValue(n)
	return nil
}

// CurrentValue reads the employee's present value for f.
func CurrentValue(e people.Employee, f Field) FieldValue {
	switch f {
	case FieldDepartment:
		return StringValue(e.Department)
	case FieldLocation, FieldWorkLocation:
		return StringValue(e.WorkLocation)
	case FieldManagerID:
		return StringValue(e.ManagerID)
	case FieldTeam:
		return StringValue(e.Team)
	case FieldTitle:
		return StringValue(e.Title)
	case FieldLevel:
		return StringValue(e.Level)
	case FieldCashComp:
		return NumberValue(e.CashComp)
	case FieldTargetBonusPct:
		return NumberValue(e.TargetBonusPct)
	case FieldPayPeriod:
		return StringValue(e.PayPeriod)
	case FieldStatus:
		return StringValue(e.Status)
	case FieldStartDate:
		return StringValue(e.StartDate)
	case FieldEndDate:
		return StringValue(e.EndDate)
	case FieldEmploymentType:
		return StringValue(e.EmploymentType)
	case FieldJurisdiction:
		return StringValue(e.Jurisdiction)
	case FieldLegalEntity:
		return StringValue(e.LegalEntity)
	default:
		return FieldValue{}
	}
}

// SetValue writes v onto the employee attribute addressed by f.
// The "location" field aliases to workLocation: both write the same
// attribute, matching what downstream systems expect.
func SetValue(e *people.Employee, f Field, v FieldValue) {
	switch f {
	case FieldDepartment:
		e.Department = v.Str
	case FieldLocation, FieldWorkLocation:
		e.WorkLocation = v.Str
	case FieldManagerID:
		e.ManagerID = v.Str
	case FieldTeam:
		e.Team = v.Str
	case FieldTitle:
		e.Title = v.Str
	case FieldLevel:
		e.Level = v.Str
	case FieldCashComp:
		e.CashComp = v.Num
	case FieldTargetBonusPct:
		e.TargetBonusPct = v.Num
	case FieldPayPeriod:
		e.PayPeriod = v.Str
	case FieldStatus:
		e.Status = v.Str
	case FieldStartDate:
		e.StartDate = v.Str
	case FieldEndDate:
		e.EndDate = v.Str
	case FieldEmploymentType:
		e.EmploymentType = v.Str
	case FieldJurisdiction:
		e.Jurisdiction = v.Str
	case FieldLegalEntity:
		e.LegalEntity = v.Str
	}
}
