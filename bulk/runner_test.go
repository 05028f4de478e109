package bulk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(wiz, csv FaultPolicy) *Runner {
	if wiz == nil {
		wiz = &ScriptedPolicy{}
	}
	if csv == nil {
		csv = &ScriptedPolicy{}
	}
	return NewRunner(wiz, csv, 0, nil)
}

func newWizardJob(units ...string) *Job {
	d := NewDraft("test")
	d.SetSelectedEmployees(units)
	d.SetSelectedFields([]Field{FieldTeam})
	d.SetApplyToAll(FieldTeam, StringValue("Platform"))
	snap := d.Clone()
	job := &Job{
		ID:            "job_test",
		Kind:          KindWizard,
		CreatedAt:     time.Now(),
		Status:        StatusValidating,
		UnitIDs:       units,
		TotalCount:    len(units),
		DraftSnapshot: &snap,
	}
	job.Audit("Job created")
	return job
}

func TestWizardRunHappyPath(t *testing.T) {
	r := newTestRunner(nil, nil)
	job := newWizardJob("emp_001", "emp_002", "emp_003")

	var updates int
	require.NoError(t, r.Continue(context.Background(), job, func(*Job) { updates++ }))

	assert.Equal(t, StatusCompleted, job.Status)
	require.Len(t, job.Results, 3)
	for _, res := range job.Results {
		assert.True(t, res.OK)
		assert.Empty(t, res.FailedStep)
		for _, s := range Steps {
			assert.Equal(t, StepOK, res.Steps[s])
		}
	}
	assert.True(t, job.HasAuditPrefix("Validation passed"))
	assert.True(t, job.HasAuditPrefix("Starting propagation"))
	assert.True(t, job.HasAuditPrefix("Job completed"))
	assert.Greater(t, updates, 3)
}

func TestWizardRunInjectedFailureSkipsRemainder(t *testing.T) {
	wiz := &ScriptedPolicy{
		Failures: map[string]Step{"emp_002": StepPayrollSync},
		Messages: map[string]string{"emp_002": "Payroll provider rejected the change"},
	}
	r := newTestRunner(wiz, nil)
	job := newWizardJob("emp_001", "emp_002")

	require.NoError(t, r.Continue(context.Background(), job, nil))

	assert.Equal(t, StatusCompletedWithErrors, job.Status)
	res, ok := job.Result("emp_002")
	require.True(t, ok)
	assert.False(t, res.OK)
	assert.Equal(t, StepPayrollSync, res.FailedStep)
	assert.Equal(t, StepOK, res.Steps[StepSystemOfRecord])
	assert.Equal(t, StepFailed, res.Steps[StepPayrollSync])
	assert.Equal(t, StepSkipped, res.Steps[StepBenefitsSync])
	assert.Equal(t, StepSkipped, res.Steps[StepDeviceMgmt])
	assert.Equal(t, StepSkipped, res.Steps[StepThirdParty])
	assert.Equal(t, "Payroll provider rejected the change", res.Message)
	assert.True(t, job.HasAuditPrefix("Job completed with 1 failed"))
}

func TestWizardResumeSkipsRecordedUnits(t *testing.T) {
	r := newTestRunner(nil, nil)
	job := newWizardJob("emp_001", "emp_002", "emp_003")
	job.Status = StatusRunning
	job.Audit("Starting propagation for 3 employees")
	job.Audit("Updating HR system of record...")
	// emp_001 already recorded by a previous run.
	steps := map[Step]StepState{}
	for _, s := range Steps {
		steps[s] = StepOK
	}
	job.Results = append(job.Results, UnitResult{UnitID: "emp_001", OK: true, Message: "All systems updated", Steps: steps})

	require.NoError(t, r.Continue(context.Background(), job, nil))

	require.Len(t, job.Results, 3, "resumed run processes only the remainder")
	assert.Equal(t, "emp_002", job.Results[1].UnitID)
	assert.Equal(t, "emp_003", job.Results[2].UnitID)

	// Milestone lines never repeat across resumes.
	count := 0
	for _, a := range job.AuditLog {
		if a.Message == "Updating HR system of record..." {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestWizardRunAuditsEveryUnitOnce(t *testing.T) {
	wiz := &ScriptedPolicy{
		Failures: map[string]Step{"emp_002": StepBenefitsSync},
		Messages: map[string]string{"emp_002": "Carrier rejected the enrollment"},
	}
	r := newTestRunner(wiz, nil)
	job := newWizardJob("emp_001", "emp_002")

	require.NoError(t, r.Continue(context.Background(), job, nil))

	counts := map[string]int{}
	for _, a := range job.AuditLog {
		counts[a.Message]++
	}
	assert.Equal(t, 1, counts["Updated emp_001"])
	assert.Equal(t, 1, counts["Failed emp_002: Carrier rejected the enrollment"])
}

func TestMilestonesEmitForSingleUnitJobs(t *testing.T) {
	r := newTestRunner(nil, nil)
	job := newWizardJob("emp_001")

	require.NoError(t, r.Continue(context.Background(), job, nil))

	for _, m := range wizardMilestones {
		assert.True(t, job.HasAuditPrefix(m.prefix), "milestone %q", m.prefix)
	}
}

func TestWizardCancellationLeavesProgressIntact(t *testing.T) {
	r := newTestRunner(nil, nil)
	job := newWizardJob("emp_001", "emp_002")
	job.Status = StatusRunning

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Continue(ctx, job, func(j *Job) {
		if len(j.Results) == 1 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Len(t, job.Results, 1)
	assert.Equal(t, []string{"emp_002"}, job.RemainingUnits())
}

func TestCSVRunInvalidRowFailsImmediately(t *testing.T) {
	r := newTestRunner(nil, nil)
	snap := &ImportSnapshot{Records: []ImportRecord{
		{RowID: "row_1", ResolvedEmployeeID: "emp_001", Values: map[Field]FieldValue{FieldTeam: StringValue("Core")}},
		{RowID: "row_2", Issues: []ImportIssue{{Field: "identity", Message: "No employee with email \"x@y.com\""}}},
	}}
	snap.Recount()
	job := &Job{
		ID:         "job_csv",
		Kind:       KindCSV,
		Status:     StatusRunning,
		UnitIDs:    snap.RowIDs(),
		TotalCount: 2,
		CSV:        snap,
	}

	require.NoError(t, r.Continue(context.Background(), job, nil))

	assert.Equal(t, StatusCompletedWithErrors, job.Status)
	res, ok := job.Result("row_2")
	require.True(t, ok)
	assert.False(t, res.OK)
	assert.Equal(t, StepSystemOfRecord, res.FailedStep)
	assert.Equal(t, StepFailed, res.Steps[StepSystemOfRecord])
	assert.Equal(t, StepSkipped, res.Steps[StepPayrollSync])
	assert.Contains(t, res.Message, "Row failed validation")
	assert.True(t, job.HasAuditPrefix("Starting CSV import"))
	assert.True(t, job.HasAuditPrefix("Imported row_1"))
	assert.True(t, job.HasAuditPrefix("Failed row_2:"))
	assert.True(t, job.HasAuditPrefix("Import completed with 1 failed"))
}

func TestRunnerDoesNotTouchTerminalJobs(t *testing.T) {
	r := newTestRunner(nil, nil)
	for _, st := range []JobStatus{StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCanceled, StatusReady} {
		job := newWizardJob("emp_001")
		job.Status = st
		require.NoError(t, r.Continue(context.Background(), job, nil))
		assert.Equal(t, st, job.Status)
		assert.Empty(t, job.Results)
	}
}

type panickyPolicy struct{ ScriptedPolicy }

func (panickyPolicy) PickFailure(string) (Step, string, bool) { panic("policy exploded") }

func TestRunnerRecoversPanics(t *testing.T) {
	r := newTestRunner(&panickyPolicy{}, nil)
	job := newWizardJob("emp_001")
	job.Status = StatusRunning

	err := r.Continue(context.Background(), job, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.True(t, job.HasAuditPrefix("Unexpected runner error"))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCompletedWithErrors.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusValidating.Terminal())
	assert.False(t, StatusReady.Terminal())
	assert.False(t, StatusRunning.Terminal())
}
