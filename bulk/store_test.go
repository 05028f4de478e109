package bulk

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opusguard/rosterops/errors"
	rtest "github.com/opusguard/rosterops/internal/testing"
	"github.com/opusguard/rosterops/people"
)

type storeFixture struct {
	conn  *sql.DB
	dir   *people.Directory
	store *JobStore
	sched *Scheduler
}

func newStoreFixture(t *testing.T, wiz, csv FaultPolicy) *storeFixture {
	t.Helper()
	conn := rtest.CreateTestDB(t)
	dir := people.NewDirectory(conn)
	_, err := dir.Seed()
	require.NoError(t, err)

	if wiz == nil {
		wiz = &ScriptedPolicy{}
	}
	if csv == nil {
		csv = &ScriptedPolicy{}
	}
	sched := NewScheduler(8, nil)
	t.Cleanup(sched.Stop)
	store := NewJobStore(conn, dir, NewRunner(wiz, csv, 0, nil), sched, nil)
	return &storeFixture{conn: conn, dir: dir, store: store, sched: sched}
}

func waitForStatus(t *testing.T, s *JobStore, id string, want ...JobStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Job(id)
		require.NoError(t, err)
		for _, w := range want {
			if job.Status == w {
				return job
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %v", id, want)
	return nil
}

func TestDraftPersistsAcrossStores(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003", "emp_004"})
		d.SetSelectedFields([]Field{FieldTeam})
		d.SetApplyToAll(FieldTeam, StringValue("Platform East"))
	})
	require.NoError(t, err)

	// A second store over the same database sees the same draft.
	other := NewJobStore(f.conn, f.dir, NewRunner(&ScriptedPolicy{}, &ScriptedPolicy{}, 0, nil), NewScheduler(0, nil), nil)
	d, err := other.CurrentDraft("admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"emp_003", "emp_004"}, d.SelectedEmployeeIDs)
	assert.Equal(t, "Platform East", d.ApplyToAll[FieldTeam].Str)

	require.NoError(t, f.store.ResetDraft())
	d, err = f.store.CurrentDraft("admin")
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestStartJobFromDraftRejectsEmptyDraft(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	_, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestWizardJobEndToEnd(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003", "emp_004"})
		d.SetSelectedFields([]Field{FieldTeam, FieldCashComp})
		d.SetApplyToAll(FieldTeam, StringValue("Platform East"))
		d.SetOverride("emp_004", FieldCashComp, NumberValue(205000))
	})
	require.NoError(t, err)

	job, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.TotalCount)

	done := waitForStatus(t, f.store, job.ID, StatusCompleted)
	assert.True(t, done.ChangesApplied)
	assert.Len(t, done.Results, 2)
	assert.True(t, done.HasAuditPrefix("Validation passed"))
	assert.True(t, done.HasAuditPrefix("Job completed"))

	// Shared value landed on both, the override only on emp_004.
	e3, err := f.dir.GetEmployee("emp_003")
	require.NoError(t, err)
	assert.Equal(t, "Platform East", e3.Team)
	e4, err := f.dir.GetEmployee("emp_004")
	require.NoError(t, err)
	assert.Equal(t, "Platform East", e4.Team)
	assert.Equal(t, 205000.0, e4.CashComp)

	// Submission reset the draft.
	d, err := f.store.CurrentDraft("admin")
	require.NoError(t, err)
	assert.True(t, d.Empty())

	// Driving a finished job again changes nothing.
	require.NoError(t, f.store.RunJobToCompletion(context.Background(), job.ID))
	again, err := f.store.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, done.ProcessedCount(), again.ProcessedCount())
	assert.Len(t, again.AuditLog, len(done.AuditLog))
}

func TestValidationBlocksThenOverrideAdmits(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003"})
		d.SetSelectedFields([]Field{FieldCashComp})
		d.SetApplyToAll(FieldCashComp, NumberValue(-100))
	})
	require.NoError(t, err)

	issues, err := f.store.ValidateDraft("admin")
	require.NoError(t, err)
	require.Len(t, issues, 1)

	_, err = f.store.StartJobFromDraft(context.Background(), "admin")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetExceptionOverride("emp_003", ReasonCompExceptionApproved, "", "admin")
	})
	require.NoError(t, err)

	job, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.NoError(t, err)

	done := waitForStatus(t, f.store, job.ID, StatusCompleted)
	res, ok := done.Result("emp_003")
	require.True(t, ok)
	assert.Contains(t, res.Message, "Exception override: "+ReasonCompExceptionApproved)
	assert.True(t, done.HasAuditPrefix("Exception overrides applied"))
}

func TestManagerGuardSkipsUnknownManager(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_005"})
		d.SetSelectedFields([]Field{FieldManagerID})
		d.SetApplyToAll(FieldManagerID, StringValue("emp_999"))
	})
	require.NoError(t, err)

	job, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.NoError(t, err)
	waitForStatus(t, f.store, job.ID, StatusCompleted)

	e, err := f.dir.GetEmployee("emp_005")
	require.NoError(t, err)
	assert.NotEqual(t, "emp_999", e.ManagerID, "dangling manager reference is never written")
}

func TestScheduledJobCancel(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	at := time.Now().Add(time.Hour)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003"})
		d.SetSelectedFields([]Field{FieldTeam})
		d.SetApplyToAll(FieldTeam, StringValue("Core"))
		d.SetSchedule(ModeScheduled, &at)
	})
	require.NoError(t, err)

	job, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, job.Status)
	assert.Equal(t, 1, f.sched.PendingCount())

	require.NoError(t, f.store.CancelJob(job.ID))
	got, err := f.store.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
	assert.False(t, got.ChangesApplied)
	assert.True(t, got.HasAuditPrefix("Job canceled"))
	assert.Equal(t, 0, f.sched.PendingCount())

	err = f.store.CancelJob(job.ID)
	assert.True(t, errors.IsInvalidRequestError(err))

	// The employee never changed.
	e, err := f.dir.GetEmployee("emp_003")
	require.NoError(t, err)
	assert.NotEqual(t, "Core", e.Team)
}

func TestScheduledJobFires(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	at := time.Now().Add(50 * time.Millisecond)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003"})
		d.SetSelectedFields([]Field{FieldTitle})
		d.SetApplyToAll(FieldTitle, StringValue("Staff Engineer"))
		d.SetSchedule(ModeScheduled, &at)
	})
	require.NoError(t, err)

	job, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, job.Status)

	done := waitForStatus(t, f.store, job.ID, StatusCompleted)
	assert.True(t, done.HasAuditPrefix("Scheduled start time reached"))
	e, err := f.dir.GetEmployee("emp_003")
	require.NoError(t, err)
	assert.Equal(t, "Staff Engineer", e.Title)
}

func TestRestoreResumesInterruptedJob(t *testing.T) {
	f := newStoreFixture(t, nil, nil)

	// Simulate a crash mid-run: a persisted running job with one of two
	// units recorded.
	d := NewDraft("admin")
	d.SetSelectedEmployees([]string{"emp_003", "emp_004"})
	d.SetSelectedFields([]Field{FieldTeam})
	d.SetApplyToAll(FieldTeam, StringValue("Resumed"))
	snap := d.Clone()
	job := &Job{
		ID:            "job_interrupted",
		Kind:          KindWizard,
		CreatedAt:     time.Now(),
		CreatedBy:     "admin",
		Status:        StatusRunning,
		UnitIDs:       []string{"emp_003", "emp_004"},
		TotalCount:    2,
		DraftSnapshot: &snap,
		UpdatedAt:     time.Now(),
	}
	job.Audit("Job created")
	require.NoError(t, f.store.insertJob(job))
	steps := map[Step]StepState{}
	for _, s := range Steps {
		steps[s] = StepOK
	}
	job.Results = append(job.Results, UnitResult{UnitID: "emp_003", OK: true, Message: "All systems updated", Steps: steps})
	require.NoError(t, f.store.persistJob(job))

	require.NoError(t, f.store.Restore(context.Background()))
	done := waitForStatus(t, f.store, job.ID, StatusCompleted)
	require.Len(t, done.Results, 2)
	assert.Equal(t, "emp_003", done.Results[0].UnitID)
	assert.Equal(t, "emp_004", done.Results[1].UnitID)
	assert.True(t, done.ChangesApplied)
}

func TestRunJobToCompletionCommitsStrandedTerminalJob(t *testing.T) {
	f := newStoreFixture(t, nil, nil)

	// Simulate a crash between the terminal persist and the commit: a
	// finished job whose changes were never applied.
	d := NewDraft("admin")
	d.SetSelectedEmployees([]string{"emp_003"})
	d.SetSelectedFields([]Field{FieldTeam})
	d.SetApplyToAll(FieldTeam, StringValue("Stranded"))
	snap := d.Clone()
	job := &Job{
		ID:            "job_stranded",
		Kind:          KindWizard,
		CreatedAt:     time.Now(),
		CreatedBy:     "admin",
		Status:        StatusCompleted,
		UnitIDs:       []string{"emp_003"},
		TotalCount:    1,
		DraftSnapshot: &snap,
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, f.store.insertJob(job))
	steps := map[Step]StepState{}
	for _, s := range Steps {
		steps[s] = StepOK
	}
	job.Results = append(job.Results, UnitResult{UnitID: "emp_003", OK: true, Message: "All systems updated", Steps: steps})
	require.NoError(t, f.store.persistJob(job))

	require.NoError(t, f.store.RunJobToCompletion(context.Background(), job.ID))

	done, err := f.store.Job(job.ID)
	require.NoError(t, err)
	assert.True(t, done.ChangesApplied)
	e, err := f.dir.GetEmployee("emp_003")
	require.NoError(t, err)
	assert.Equal(t, "Stranded", e.Team)
}

func TestStartJobFromDraftRejectsStaleSchedule(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	past := time.Now().Add(-time.Minute)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003"})
		d.SetSelectedFields([]Field{FieldTeam})
		d.SetApplyToAll(FieldTeam, StringValue("Late"))
		d.SetSchedule(ModeScheduled, &past)
	})
	require.NoError(t, err)
	_, err = f.store.StartJobFromDraft(context.Background(), "admin")
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSchedule(ModeScheduled, nil)
	})
	require.NoError(t, err)
	_, err = f.store.StartJobFromDraft(context.Background(), "admin")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestSubscribeSeesJobUpdates(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	ch := f.store.Subscribe()
	defer f.store.Unsubscribe(ch)

	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003"})
		d.SetSelectedFields([]Field{FieldTeam})
		d.SetApplyToAll(FieldTeam, StringValue("Notify"))
	})
	require.NoError(t, err)
	job, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.NoError(t, err)

	select {
	case id := <-ch:
		assert.Equal(t, job.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}
	waitForStatus(t, f.store, job.ID, StatusCompleted)
}

func TestEnsureJobRunningSingleFlight(t *testing.T) {
	f := newStoreFixture(t, nil, nil)
	_, err := f.store.UpdateDraft("admin", func(d *Draft) {
		d.SetSelectedEmployees([]string{"emp_003", "emp_004", "emp_005"})
		d.SetSelectedFields([]Field{FieldTeam})
		d.SetApplyToAll(FieldTeam, StringValue("Solo"))
	})
	require.NoError(t, err)
	job, err := f.store.StartJobFromDraft(context.Background(), "admin")
	require.NoError(t, err)

	// Pile on extra drivers; the unit-unique constraint plus the run
	// guard keep every unit recorded exactly once.
	for i := 0; i < 4; i++ {
		f.store.EnsureJobRunning(context.Background(), job.ID)
	}
	done := waitForStatus(t, f.store, job.ID, StatusCompleted)
	assert.Len(t, done.Results, 3)
	seen := map[string]int{}
	for _, r := range done.Results {
		seen[r.UnitID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "unit %s recorded once", id)
	}
}
