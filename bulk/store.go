package bulk

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opusguard/rosterops/errors"
	"github.com/opusguard/rosterops/people"
)

// JobStore owns the current draft and every bulk-change job, persisting
// both to sqlite. Jobs are always read back from the database, so any
// process observing the store sees the same state; the injected Scheduler
// carries the in-memory coordination (single-flight guards, timers).
type JobStore struct {
	db     *sql.DB
	dir    *people.Directory
	runner *Runner
	sched  *Scheduler
	log    *zap.SugaredLogger

	mu    sync.Mutex
	draft *Draft
	subs  []chan string
}

// NewJobStore wires the store to its collaborators.
func NewJobStore(db *sql.DB, dir *people.Directory, runner *Runner, sched *Scheduler, log *zap.SugaredLogger) *JobStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &JobStore{db: db, dir: dir, runner: runner, sched: sched, log: log}
}

// CurrentDraft returns the persisted draft, creating an empty one when
// none exists.
func (s *JobStore) CurrentDraft(createdBy string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft != nil {
		return s.draft, nil
	}
	d, err := s.loadDraft()
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = NewDraft(createdBy)
		if err := s.saveDraft(d); err != nil {
			return nil, err
		}
	}
	s.draft = d
	return d, nil
}

// UpdateDraft applies mutate to the current draft and persists the
// result. This is the single write path for draft edits.
func (s *JobStore) UpdateDraft(createdBy string, mutate func(*Draft)) (*Draft, error) {
	d, err := s.CurrentDraft(createdBy)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(d)
	if err := s.saveDraft(d); err != nil {
		return nil, err
	}
	return d, nil
}

// ResetDraft discards the current draft.
func (s *JobStore) ResetDraft() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
	return s.deleteDraft()
}

// ValidateDraft runs the business rules over the current draft against
// the live directory.
func (s *JobStore) ValidateDraft(createdBy string) ([]ValidationIssue, error) {
	d, err := s.CurrentDraft(createdBy)
	if err != nil {
		return nil, err
	}
	employees, err := s.dir.GetEmployees()
	if err != nil {
		return nil, err
	}
	return Validate(employees, d), nil
}

// PreviewDraft computes the change diff for the current draft.
func (s *JobStore) PreviewDraft(createdBy string) ([]DiffEntry, error) {
	d, err := s.CurrentDraft(createdBy)
	if err != nil {
		return nil, err
	}
	employees, err := s.dir.GetEmployees()
	if err != nil {
		return nil, err
	}
	return ComputeDiff(employees, d), nil
}

// StartJobFromDraft snapshots the current draft into a new job and resets
// the draft. Validation errors block submission unless every blocked
// employee carries a complete exception override. Scheduled drafts yield
// a ready job with an armed timer; immediate drafts start running in the
// background.
func (s *JobStore) StartJobFromDraft(ctx context.Context, actor string) (*Job, error) {
	d, err := s.CurrentDraft(actor)
	if err != nil {
		return nil, err
	}
	if d.Empty() {
		return nil, errors.NewInvalidRequestError("draft selects no people or no fields")
	}

	employees, err := s.dir.GetEmployees()
	if err != nil {
		return nil, err
	}
	issues := Validate(employees, d)
	if blocked := BlockedEmployeeIDs(issues); len(blocked) > 0 && !d.OverridesComplete(blocked) {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("draft has unresolved validation issues"),
			"fix the flagged values or record an exception override for each flagged employee")
	}

	now := time.Now()
	scheduled := d.EffectiveMode == ModeScheduled
	if scheduled && (d.EffectiveAt == nil || !d.EffectiveAt.After(now)) {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("scheduled drafts need a future effective time"),
			"set an effective time after now or switch to immediate")
	}
	if scheduled && s.sched.AtCapacity() {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("too many scheduled jobs pending"),
			"cancel a scheduled job or wait for one to start")
	}
	snapshot := d.Clone()
	job := &Job{
		ID:            newID("job"),
		Kind:          KindWizard,
		CreatedAt:     now,
		CreatedBy:     actor,
		UnitIDs:       snapshot.SelectedEmployeeIDs,
		TotalCount:    len(snapshot.SelectedEmployeeIDs),
		DraftSnapshot: &snapshot,
		UpdatedAt:     now,
	}
	job.Audit("Job created")

	if scheduled {
		at := *d.EffectiveAt
		job.EffectiveAt = &at
		job.Status = StatusReady
		job.Audit("Scheduled to start at " + at.Format(time.RFC3339))
	} else {
		job.Status = StatusValidating
	}

	if err := s.insertJob(job); err != nil {
		return nil, err
	}
	if err := s.ResetDraft(); err != nil {
		return nil, err
	}
	s.notify(job.ID)

	if scheduled {
		s.sched.Arm(job.ID, *job.EffectiveAt, func() { s.activateScheduled(job.ID) })
	} else {
		s.EnsureJobRunning(context.WithoutCancel(ctx), job.ID)
	}
	return job, nil
}

// StartCSVJob resolves an uploaded CSV against the directory and starts
// an import job over its rows. Rows that failed to resolve still become
// units; they fail at the first step when processed.
func (s *JobStore) StartCSVJob(ctx context.Context, text string, effectiveAt *time.Time, actor string) (*Job, error) {
	employees, err := s.dir.GetEmployees()
	if err != nil {
		return nil, err
	}
	snap, err := ResolveCSV(text, employees)
	if err != nil {
		return nil, err
	}
	if len(snap.Records) == 0 {
		return nil, errors.NewInvalidRequestError("csv has no data rows")
	}

	now := time.Now()
	if effectiveAt != nil && effectiveAt.After(now) && s.sched.AtCapacity() {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("too many scheduled jobs pending"),
			"cancel a scheduled job or wait for one to start")
	}
	job := &Job{
		ID:         newID("job"),
		Kind:       KindCSV,
		CreatedAt:  now,
		CreatedBy:  actor,
		UnitIDs:    snap.RowIDs(),
		TotalCount: len(snap.Records),
		CSV:        snap,
		UpdatedAt:  now,
	}
	job.Audit(fmt.Sprintf("CSV import created: %d rows (%d valid, %d need attention)",
		len(snap.Records), snap.ValidCount, snap.InvalidCount))

	scheduled := effectiveAt != nil && effectiveAt.After(now)
	if scheduled {
		at := *effectiveAt
		job.EffectiveAt = &at
		job.Status = StatusReady
		job.Audit("Scheduled to start at " + at.Format(time.RFC3339))
	} else {
		job.Status = StatusRunning
	}

	if err := s.insertJob(job); err != nil {
		return nil, err
	}
	s.notify(job.ID)

	if scheduled {
		s.sched.Arm(job.ID, *job.EffectiveAt, func() { s.activateScheduled(job.ID) })
	} else {
		s.EnsureJobRunning(context.WithoutCancel(ctx), job.ID)
	}
	return job, nil
}

// Job loads one job with its results and audit log.
func (s *JobStore) Job(id string) (*Job, error) {
	return s.loadJob(id)
}

// Jobs lists every job, newest first.
func (s *JobStore) Jobs() ([]*Job, error) {
	return s.listJobs()
}

// EnsureJobRunning resumes the job on a background goroutine. A no-op
// when another goroutine already drives it or the job is terminal.
func (s *JobStore) EnsureJobRunning(ctx context.Context, id string) {
	go func() {
		if err := s.RunJobToCompletion(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Errorw("job run failed", "job", id, "error", err)
		}
	}()
}

// RunJobToCompletion drives the job synchronously until it reaches a
// terminal status, then applies its changes. Exactly one caller makes
// progress per job; concurrent callers return immediately.
func (s *JobStore) RunJobToCompletion(ctx context.Context, id string) error {
	if !s.sched.TryAcquireRun(id) {
		return nil
	}
	defer s.sched.ReleaseRun(id)

	job, err := s.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status == StatusReady {
		return nil
	}
	if job.Status.Terminal() {
		// A crash between the terminal persist and the commit leaves a
		// finished job with its changes unapplied; pick that up here.
		if !job.ChangesApplied && (job.Status == StatusCompleted || job.Status == StatusCompletedWithErrors) {
			return s.finalize(job)
		}
		return nil
	}

	onUpdate := func(j *Job) {
		if perr := s.persistJob(j); perr != nil {
			s.log.Errorw("persist progress", "job", j.ID, "error", perr)
		}
		s.notify(j.ID)
	}

	if err := s.runner.Continue(ctx, job, onUpdate); err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return nil
	}
	return s.finalize(job)
}

// CancelJob cancels a scheduled job before its start time. Running and
// terminal jobs cannot be canceled.
func (s *JobStore) CancelJob(id string) error {
	job, err := s.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != StatusReady {
		return errors.NewInvalidRequestError("only scheduled jobs can be canceled")
	}
	s.sched.Disarm(id)
	job.Status = StatusCanceled
	job.Audit("Job canceled before scheduled start")
	if err := s.persistJob(job); err != nil {
		return err
	}
	s.notify(id)
	return nil
}

// Restore is called once at startup: it re-arms timers for scheduled
// jobs (starting overdue ones immediately) and resumes jobs that were
// mid-run when the process last stopped.
func (s *JobStore) Restore(ctx context.Context) error {
	jobs, err := s.listJobs()
	if err != nil {
		return err
	}
	for _, job := range jobs {
		switch job.Status {
		case StatusReady:
			if job.EffectiveAt == nil {
				continue
			}
			id := job.ID
			s.sched.Arm(id, *job.EffectiveAt, func() { s.activateScheduled(id) })
		case StatusValidating, StatusRunning:
			s.log.Infow("resuming interrupted job", "job", job.ID, "processed", job.ProcessedCount(), "total", job.TotalCount)
			s.EnsureJobRunning(ctx, job.ID)
		case StatusCompleted, StatusCompletedWithErrors:
			if !job.ChangesApplied {
				s.log.Infow("committing finished job with unapplied changes", "job", job.ID)
				s.EnsureJobRunning(ctx, job.ID)
			}
		}
	}
	return nil
}

// Subscribe returns a channel receiving the id of every job that changes.
// Slow subscribers drop notifications rather than block the runner.
func (s *JobStore) Subscribe() chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan string, 16)
	s.subs = append(s.subs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (s *JobStore) Unsubscribe(ch chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *JobStore) notify(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- jobID:
		default:
		}
	}
}

// activateScheduled flips a ready job into its running phase when its
// effective time arrives.
func (s *JobStore) activateScheduled(id string) {
	job, err := s.loadJob(id)
	if err != nil {
		s.log.Errorw("load scheduled job", "job", id, "error", err)
		return
	}
	if job.Status != StatusReady {
		return
	}
	if job.Kind == KindCSV {
		job.Status = StatusRunning
	} else {
		job.Status = StatusValidating
	}
	job.Audit("Scheduled start time reached")
	if err := s.persistJob(job); err != nil {
		s.log.Errorw("persist scheduled job", "job", id, "error", err)
		return
	}
	s.notify(id)
	s.EnsureJobRunning(context.Background(), id)
}

// finalize runs once a job reaches a terminal status: commit the changes
// of successful units, then annotate results covered by exception
// overrides. Committing is idempotent; a resumed finalize never applies
// changes twice.
func (s *JobStore) finalize(job *Job) error {
	if err := s.applyChanges(job); err != nil {
		return err
	}
	if err := s.annotateOverrides(job); err != nil {
		return err
	}
	s.notify(job.ID)
	return nil
}

func (s *JobStore) applyChanges(job *Job) error {
	if job.ChangesApplied {
		return nil
	}
	employees, err := s.dir.GetEmployees()
	if err != nil {
		return err
	}
	byID := make(map[string]people.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}

	var changed []people.Employee
	if job.Kind == KindCSV {
		changed = applyCSVResults(job, byID)
	} else {
		changed = applyWizardResults(job, byID)
	}
	if len(changed) > 0 {
		if err := s.dir.UpdateEmployees(changed); err != nil {
			return errors.Wrapf(err, "apply changes for job %s", job.ID)
		}
	}
	job.ChangesApplied = true
	if err := s.persistJob(job); err != nil {
		return err
	}
	s.log.Infow("changes applied", "job", job.ID, "updated", len(changed))
	return nil
}

func applyWizardResults(job *Job, byID map[string]people.Employee) []people.Employee {
	d := job.DraftSnapshot
	if d == nil {
		return nil
	}
	var changed []people.Employee
	for _, r := range job.Results {
		if !r.OK {
			continue
		}
		e, ok := byID[r.UnitID]
		if !ok {
			continue
		}
		if applyFieldValues(&e, byID, func(yield func(Field, FieldValue)) {
			for _, f := range d.SelectedFields {
				if v, ok := d.IntendedChange(e.ID, f); ok {
					yield(f, v)
				}
			}
		}) {
			changed = append(changed, e)
		}
	}
	return changed
}

func applyCSVResults(job *Job, byID map[string]people.Employee) []people.Employee {
	if job.CSV == nil {
		return nil
	}
	var changed []people.Employee
	for _, r := range job.Results {
		if !r.OK {
			continue
		}
		rec, ok := job.CSV.Record(r.UnitID)
		if !ok || rec.ResolvedEmployeeID == "" {
			continue
		}
		e, ok := byID[rec.ResolvedEmployeeID]
		if !ok {
			continue
		}
		if applyFieldValues(&e, byID, func(yield func(Field, FieldValue)) {
			for _, f := range AllFields {
				if v, ok := rec.Values[f]; ok {
					yield(f, v)
				}
			}
		}) {
			changed = append(changed, e)
		}
	}
	return changed
}

// applyFieldValues writes each yielded value onto e, skipping no-ops and
// manager references that point at nobody. Reports whether anything
// changed.
func applyFieldValues(e *people.Employee, byID map[string]people.Employee, each func(func(Field, FieldValue))) bool {
	dirty := false
	each(func(f Field, v FieldValue) {
		if f == FieldManagerID && v.Str != "" {
			if _, exists := byID[v.Str]; !exists {
				return
			}
		}
		if CurrentValue(*e, f).Equal(v) {
			return
		}
		SetValue(e, f, v)
		dirty = true
	})
	return dirty
}

// annotateOverrides appends the recorded exception override to each
// successful result it covers, once.
func (s *JobStore) annotateOverrides(job *Job) error {
	d := job.DraftSnapshot
	if job.Kind != KindWizard || d == nil || len(d.ExceptionOverrides) == 0 {
		return nil
	}
	annotated := 0
	for i := range job.Results {
		r := &job.Results[i]
		eo, ok := d.ExceptionOverrides[r.UnitID]
		if !ok || !r.OK || strings.Contains(r.Message, "Exception override:") {
			continue
		}
		suffix := "Exception override: " + eo.Reason
		if eo.Note != "" {
			suffix += " (" + eo.Note + ")"
		}
		r.Message = r.Message + ". " + suffix
		if err := s.updateResult(job.ID, *r); err != nil {
			return err
		}
		annotated++
	}
	if annotated > 0 && !job.HasAuditPrefix("Exception overrides applied") {
		job.Audit(fmt.Sprintf("Exception overrides applied to %d employees", annotated))
		if err := s.persistJob(job); err != nil {
			return err
		}
	}
	return nil
}
