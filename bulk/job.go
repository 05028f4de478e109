package bulk

import (
	"fmt"
	"strings"
	"time"
)

// JobKind distinguishes wizard-submitted jobs from CSV imports.
type JobKind string

const (
	KindWizard JobKind = "wizard"
	KindCSV    JobKind = "csv"
)

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	// StatusValidating is the brief settle phase before a wizard job
	// starts processing units.
	StatusValidating JobStatus = "validating"
	// StatusReady means the job is scheduled for a future effective time.
	StatusReady JobStatus = "ready"
	// StatusRunning means units are being processed.
	StatusRunning JobStatus = "running"
	// StatusCompleted means every unit succeeded.
	StatusCompleted JobStatus = "completed"
	// StatusCompletedWithErrors means the run finished but some units failed.
	StatusCompletedWithErrors JobStatus = "completed_with_errors"
	// StatusFailed means the runner itself hit an unrecoverable error.
	StatusFailed JobStatus = "failed"
	// StatusCanceled means a scheduled job was canceled before starting.
	StatusCanceled JobStatus = "canceled"
)

// Terminal reports whether the status admits no further processing
// without an explicit retry.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Step is one stage of the propagation pipeline.
type Step string

const (
	StepSystemOfRecord Step = "systemOfRecordUpdate"
	StepPayrollSync    Step = "payrollSync"
	StepBenefitsSync   Step = "benefitsSync"
	StepDeviceMgmt     Step = "deviceMgmtSync"
	StepThirdParty     Step = "thirdPartySync"
)

// Steps is the pipeline in execution order. Every unit walks these in
// sequence; a failure skips the remainder.
var Steps = []Step{
	StepSystemOfRecord,
	StepPayrollSync,
	StepBenefitsSync,
	StepDeviceMgmt,
	StepThirdParty,
}

// StepLabels maps steps to the system names used in audit messages.
var StepLabels = map[Step]string{
	StepSystemOfRecord: "HR system of record",
	StepPayrollSync:    "Payroll",
	StepBenefitsSync:   "Benefits",
	StepDeviceMgmt:     "IT access & devices",
	StepThirdParty:     "Apps & integrations",
}

// StepState is the per-unit outcome of one step.
type StepState string

const (
	StepPending StepState = "pending"
	StepOK      StepState = "ok"
	StepFailed  StepState = "failed"
	StepSkipped StepState = "skipped"
)

// UnitResult records the outcome of one processed unit (an employee for
// wizard jobs, a row for CSV imports).
type UnitResult struct {
	UnitID     string             `json:"unitId"`
	OK         bool               `json:"ok"`
	FailedStep Step               `json:"failedStep,omitempty"`
	Message    string             `json:"message"`
	Steps      map[Step]StepState `json:"steps"`
}

// AuditEntry is one timestamped line of the job's audit log.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Job is a persisted bulk-change run. Exactly one snapshot field is set
// according to Kind: DraftSnapshot for wizard jobs, CSV for imports.
type Job struct {
	ID             string       `json:"id"`
	Kind           JobKind      `json:"kind"`
	CreatedAt      time.Time    `json:"createdAt"`
	CreatedBy      string       `json:"createdBy"`
	Status         JobStatus    `json:"status"`
	UnitIDs        []string     `json:"unitIds"`
	TotalCount     int          `json:"totalCount"`
	Results        []UnitResult `json:"results"`
	AuditLog       []AuditEntry `json:"auditLog"`
	ChangesApplied bool         `json:"changesApplied"`
	EffectiveAt    *time.Time   `json:"effectiveAt,omitempty"`
	DraftSnapshot  *Draft       `json:"draftSnapshot,omitempty"`
	CSV            *ImportSnapshot `json:"csv,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// ProcessedCount is the number of units with a recorded result.
func (j *Job) ProcessedCount() int { return len(j.Results) }

// FailureCount counts failed units among recorded results.
func (j *Job) FailureCount() int {
	n := 0
	for _, r := range j.Results {
		if !r.OK {
			n++
		}
	}
	return n
}

// RemainingUnits returns the unit ids that have no recorded result yet,
// in original order. This is what makes resumption safe: a restarted run
// picks up exactly here.
func (j *Job) RemainingUnits() []string {
	done := make(map[string]struct{}, len(j.Results))
	for _, r := range j.Results {
		done[r.UnitID] = struct{}{}
	}
	var out []string
	for _, id := range j.UnitIDs {
		if _, ok := done[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Result returns the recorded result for a unit, if any.
func (j *Job) Result(unitID string) (*UnitResult, bool) {
	for i := range j.Results {
		if j.Results[i].UnitID == unitID {
			return &j.Results[i], true
		}
	}
	return nil, false
}

// HasAuditPrefix reports whether any audit line starts with prefix. Used
// to deduplicate milestone messages across resumed runs.
func (j *Job) HasAuditPrefix(prefix string) bool {
	for _, a := range j.AuditLog {
		if strings.HasPrefix(a.Message, prefix) {
			return true
		}
	}
	return false
}

// Audit appends a timestamped line to the job's audit log.
func (j *Job) Audit(msg string) {
	j.AuditLog = append(j.AuditLog, AuditEntry{At: time.Now(), Message: msg})
}

// DisplayName renders a short human label for lists: the kind, the field
// summary for wizard jobs, and the unit count.
func (j *Job) DisplayName() string {
	switch j.Kind {
	case KindCSV:
		return fmt.Sprintf("CSV import (%d rows)", j.TotalCount)
	default:
		fieldPart := "no fields"
		if j.DraftSnapshot != nil && len(j.DraftSnapshot.SelectedFields) > 0 {
			labels := make([]string, 0, len(j.DraftSnapshot.SelectedFields))
			for _, f := range j.DraftSnapshot.SelectedFields {
				labels = append(labels, f.Label())
			}
			if len(labels) > 3 {
				labels = append(labels[:3], fmt.Sprintf("+%d more", len(labels)-3))
			}
			fieldPart = strings.Join(labels, ", ")
		}
		return fmt.Sprintf("Bulk change: %s (%d people)", fieldPart, j.TotalCount)
	}
}
