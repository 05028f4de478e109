package bulk

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/opusguard/rosterops/people"
)

// Effective timing modes for a draft.
const (
	ModeImmediate = "immediate"
	ModeScheduled = "scheduled"
)

// Exception override reasons. ReasonOther requires a free-text note.
const (
	ReasonCompExceptionApproved = "Comp exception approved"
	ReasonRetentionAdjustment   = "Retention adjustment"
	ReasonDataCorrection        = "Data correction in progress"
	ReasonOther                 = "Other"
)

// ExceptionOverrideReasons lists the selectable reasons in display order.
var ExceptionOverrideReasons = []string{
	ReasonCompExceptionApproved,
	ReasonRetentionAdjustment,
	ReasonDataCorrection,
	ReasonOther,
}

// ExceptionOverride records an explicit acknowledgement that a flagged
// change should proceed anyway.
type ExceptionOverride struct {
	Reason    string    `json:"reason"`
	Note      string    `json:"note,omitempty"`
	AppliedBy string    `json:"appliedBy"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Draft is the in-progress edit set built up before submission. A draft
// selects people, selects fields, and records intended values either for
// everyone at once or per person.
type Draft struct {
	ID                  string                         `json:"id"`
	CreatedAt           time.Time                      `json:"createdAt"`
	CreatedBy           string                         `json:"createdBy"`
	SelectedEmployeeIDs []string                       `json:"selectedEmployeeIds"`
	SelectedFields      []Field                        `json:"selectedFields"`
	ApplyToAll          map[Field]FieldValue           `json:"applyToAll"`
	Overrides           map[string]map[Field]FieldValue `json:"overrides"`
	EffectiveMode       string                         `json:"effectiveMode"`
	EffectiveAt         *time.Time                     `json:"effectiveAt,omitempty"`
	ExceptionOverrides  map[string]ExceptionOverride   `json:"exceptionOverrides,omitempty"`
}

// NewDraft returns an empty immediate-mode draft.
func NewDraft(createdBy string) *Draft {
	return &Draft{
		ID:            newID("draft"),
		CreatedAt:     time.Now(),
		CreatedBy:     createdBy,
		ApplyToAll:    map[Field]FieldValue{},
		Overrides:     map[string]map[Field]FieldValue{},
		EffectiveMode: ModeImmediate,
	}
}

// Clone deep-copies the draft so a submitted job's snapshot is insulated
// from later draft edits.
func (d *Draft) Clone() Draft {
	c := *d
	c.SelectedEmployeeIDs = slices.Clone(d.SelectedEmployeeIDs)
	c.SelectedFields = slices.Clone(d.SelectedFields)
	c.ApplyToAll = make(map[Field]FieldValue, len(d.ApplyToAll))
	for f, v := range d.ApplyToAll {
		c.ApplyToAll[f] = v
	}
	c.Overrides = make(map[string]map[Field]FieldValue, len(d.Overrides))
	for id, m := range d.Overrides {
		inner := make(map[Field]FieldValue, len(m))
		for f, v := range m {
			inner[f] = v
		}
		c.Overrides[id] = inner
	}
	if d.ExceptionOverrides != nil {
		c.ExceptionOverrides = make(map[string]ExceptionOverride, len(d.ExceptionOverrides))
		for id, eo := range d.ExceptionOverrides {
			c.ExceptionOverrides[id] = eo
		}
	}
	if d.EffectiveAt != nil {
		at := *d.EffectiveAt
		c.EffectiveAt = &at
	}
	return c
}

// SetSelectedEmployees replaces the selection, deduplicating while
// preserving first-seen order.
func (d *Draft) SetSelectedEmployees(ids []string) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	d.SelectedEmployeeIDs = out
}

// SetSelectedFields replaces the field selection, deduplicating and
// dropping unknown fields.
func (d *Draft) SetSelectedFields(fields []Field) {
	seen := make(map[Field]struct{}, len(fields))
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup || !ValidField(f) {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	d.SelectedFields = out
}

// HasSelected reports whether id is part of the selection.
func (d *Draft) HasSelected(id string) bool {
	return slices.Contains(d.SelectedEmployeeIDs, id)
}

// SetApplyToAll records a shared value for every selected person. A zero
// value clears the entry.
func (d *Draft) SetApplyToAll(f Field, v FieldValue) {
	if d.ApplyToAll == nil {
		d.ApplyToAll = map[Field]FieldValue{}
	}
	if v.IsZero() {
		delete(d.ApplyToAll, f)
		return
	}
	d.ApplyToAll[f] = v
}

// SetOverride records a per-person value that takes precedence over the
// shared value. A zero value clears the override.
func (d *Draft) SetOverride(employeeID string, f Field, v FieldValue) {
	if d.Overrides == nil {
		d.Overrides = map[string]map[Field]FieldValue{}
	}
	m := d.Overrides[employeeID]
	if v.IsZero() {
		if m != nil {
			delete(m, f)
			if len(m) == 0 {
				delete(d.Overrides, employeeID)
			}
		}
		return
	}
	if m == nil {
		m = map[Field]FieldValue{}
		d.Overrides[employeeID] = m
	}
	m[f] = v
}

// Override returns the per-person value for f, if one is set.
func (d *Draft) Override(employeeID string, f Field) (FieldValue, bool) {
	m, ok := d.Overrides[employeeID]
	if !ok {
		return FieldValue{}, false
	}
	v, ok := m[f]
	if !ok || v.IsZero() {
		return FieldValue{}, false
	}
	return v, true
}

// SetSchedule switches the draft between immediate and scheduled modes.
// Immediate mode drops any previously chosen time.
func (d *Draft) SetSchedule(mode string, at *time.Time) {
	d.EffectiveMode = mode
	if mode == ModeScheduled {
		d.EffectiveAt = at
	} else {
		d.EffectiveAt = nil
	}
}

// SetExceptionOverride records an override acknowledgement for one person.
func (d *Draft) SetExceptionOverride(employeeID, reason, note, appliedBy string) {
	if d.ExceptionOverrides == nil {
		d.ExceptionOverrides = map[string]ExceptionOverride{}
	}
	d.ExceptionOverrides[employeeID] = ExceptionOverride{
		Reason:    reason,
		Note:      note,
		AppliedBy: appliedBy,
		AppliedAt: time.Now(),
	}
}

// ClearExceptionOverride removes the acknowledgement for one person.
func (d *Draft) ClearExceptionOverride(employeeID string) {
	delete(d.ExceptionOverrides, employeeID)
}

// OverridesComplete reports whether every id in required carries an
// exception override, each with a reason, and a note when the reason is
// Other.
func (d *Draft) OverridesComplete(required []string) bool {
	for _, id := range required {
		eo, ok := d.ExceptionOverrides[id]
		if !ok || eo.Reason == "" {
			return false
		}
		if eo.Reason == ReasonOther && eo.Note == "" {
			return false
		}
	}
	return true
}

// EffectiveValue resolves the value field f would take for e under this
// draft: the per-person override wins, then the shared value, then the
// person's current value. Empty strings never shadow a lower layer.
func (d *Draft) EffectiveValue(e people.Employee, f Field) FieldValue {
	if v, ok := d.Override(e.ID, f); ok {
		return v
	}
	if v, ok := d.ApplyToAll[f]; ok && !v.IsZero() {
		return v
	}
	return CurrentValue(e, f)
}

// IntendedChange resolves the value the draft would write for f, without
// falling back to the current value. The second return is false when the
// draft records nothing for this person and field.
func (d *Draft) IntendedChange(employeeID string, f Field) (FieldValue, bool) {
	if v, ok := d.Override(employeeID, f); ok {
		return v, true
	}
	if v, ok := d.ApplyToAll[f]; ok && !v.IsZero() {
		return v, true
	}
	return FieldValue{}, false
}

// Empty reports whether the draft selects no people or no fields.
func (d *Draft) Empty() bool {
	return len(d.SelectedEmployeeIDs) == 0 || len(d.SelectedFields) == 0
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
