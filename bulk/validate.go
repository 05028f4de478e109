package bulk

import (
	"github.com/opusguard/rosterops/people"
)

// Issue severities. Every current rule is an error; warnings are reserved
// for advisory rules.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationIssue flags one problematic effective value for one person.
type ValidationIssue struct {
	EmployeeID string `json:"employeeId"`
	Field      Field  `json:"field"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// Validate evaluates the draft's effective values against the business
// rules and returns every issue found. Employees outside the draft's
// selection are ignored, so callers may pass the full directory. Issues
// come back in employee order, rule order within an employee.
func Validate(employees []people.Employee, d *Draft) []ValidationIssue {
	selected := make(map[string]struct{}, len(d.SelectedEmployeeIDs))
	for _, id := range d.SelectedEmployeeIDs {
		selected[id] = struct{}{}
	}
	fieldSelected := make(map[Field]struct{}, len(d.SelectedFields))
	for _, f := range d.SelectedFields {
		fieldSelected[f] = struct{}{}
	}

	var issues []ValidationIssue
	add := func(id string, f Field, msg string) {
		issues = append(issues, ValidationIssue{
			EmployeeID: id,
			Field:      f,
			Message:    msg,
			Severity:   SeverityError,
		})
	}

	for _, e := range employees {
		if _, ok := selected[e.ID]; !ok {
			continue
		}

		if _, ok := fieldSelected[FieldCashComp]; ok {
			if v := d.EffectiveValue(e, FieldCashComp); v.Kind == ValueNumber && v.Num < 0 {
				add(e.ID, FieldCashComp, "Cash compensation cannot be negative")
			}
		}

		if _, ok := fieldSelected[FieldLevel]; ok {
			if v := d.EffectiveValue(e, FieldLevel); !v.IsZero() && !people.ValidLevel(v.Str) {
				add(e.ID, FieldLevel, "Level must be one of L1 through L7")
			}
		}

		if _, ok := fieldSelected[FieldManagerID]; ok {
			if v := d.EffectiveValue(e, FieldManagerID); v.Str != "" && v.Str == e.ID {
				add(e.ID, FieldManagerID, "An employee cannot be their own manager")
			}
		}

		if _, ok := fieldSelected[FieldTargetBonusPct]; ok {
			if v := d.EffectiveValue(e, FieldTargetBonusPct); v.Kind == ValueNumber && (v.Num < 0 || v.Num > 100) {
				add(e.ID, FieldTargetBonusPct, "Target bonus must be between 0 and 100")
			}
		}

		_, bonusSel := fieldSelected[FieldTargetBonusPct]
		_, paySel := fieldSelected[FieldPayPeriod]
		if bonusSel || paySel {
			pay := d.EffectiveValue(e, FieldPayPeriod)
			bonus := d.EffectiveValue(e, FieldTargetBonusPct)
			if pay.Str == people.PayHourly && bonus.Kind == ValueNumber && bonus.Num > 0 {
				add(e.ID, FieldTargetBonusPct, "Hourly employees cannot have a target bonus")
			}
		}
	}
	return issues
}

// GroupIssuesByEmployee buckets issues by employee id, preserving order
// within each bucket.
func GroupIssuesByEmployee(issues []ValidationIssue) map[string][]ValidationIssue {
	out := make(map[string][]ValidationIssue)
	for _, is := range issues {
		out[is.EmployeeID] = append(out[is.EmployeeID], is)
	}
	return out
}

// BlockedEmployeeIDs returns the distinct employee ids carrying at least
// one error-severity issue, in first-seen order.
func BlockedEmployeeIDs(issues []ValidationIssue) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, is := range issues {
		if is.Severity != SeverityError {
			continue
		}
		if _, dup := seen[is.EmployeeID]; dup {
			continue
		}
		seen[is.EmployeeID] = struct{}{}
		out = append(out, is.EmployeeID)
	}
	return out
}
