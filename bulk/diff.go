package bulk

import (
	"github.com/opusguard/rosterops/people"
)

// DiffEntry describes one concrete change the draft would make: employee,
// field, value before, value after.
type DiffEntry struct {
	EmployeeID string     `json:"employeeId"`
	Field      Field      `json:"field"`
	From       FieldValue `json:"from"`
	To         FieldValue `json:"to"`
}

// ComputeDiff previews the draft against the directory, returning one
// entry per selected employee and field whose effective value differs
// from the current value. No-op entries are omitted.
func ComputeDiff(employees []people.Employee, d *Draft) []DiffEntry {
	selected := make(map[string]struct{}, len(d.SelectedEmployeeIDs))
	for _, id := range d.SelectedEmployeeIDs {
		selected[id] = struct{}{}
	}

	var out []DiffEntry
	for _, e := range employees {
		if _, ok := selected[e.ID]; !ok {
			continue
		}
		for _, f := range d.SelectedFields {
			to, ok := d.IntendedChange(e.ID, f)
			if !ok {
				continue
			}
			from := CurrentValue(e, f)
			if from.Equal(to) {
				continue
			}
			out = append(out, DiffEntry{EmployeeID: e.ID, Field: f, From: from, To: to})
		}
	}
	return out
}

// SummarizeByField counts pending changes per field for the review step.
func SummarizeByField(diff []DiffEntry) map[Field]int {
	out := make(map[Field]int)
	for _, d := range diff {
		out[d.Field]++
	}
	return out
}
