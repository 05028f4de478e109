package bulk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opusguard/rosterops/errors"
)

// milestone is an audit line emitted once when processing crosses a
// percentage threshold. Deduplicated by prefix so resumed runs never
// repeat a line.
type milestone struct {
	pct     int
	prefix  string
	message string
}

var wizardMilestones = []milestone{
	{0, "Updating HR system", "Updating HR system of record..."},
	{20, "Syncing payroll", "Syncing payroll..."},
	{40, "Syncing benefits", "Syncing benefits..."},
	{60, "Updating IT", "Updating IT access & devices..."},
	{80, "Updating apps", "Updating apps & integrations..."},
}

var csvMilestones = []milestone{
	{0, "Updating HR system", "Updating HR system of record..."},
	{25, "Syncing payroll", "Syncing payroll..."},
	{50, "Syncing benefits", "Syncing benefits..."},
	{70, "Updating IT", "Updating IT access & devices..."},
	{85, "Updating apps", "Updating apps & integrations..."},
}

// Runner drives a job from its current persisted state to a terminal
// status, one unit at a time through the propagation pipeline. It is
// stateless across calls: everything it needs lives on the job, so a
// process restart can hand the same job back and processing continues
// where the recorded results end.
type Runner struct {
	wizard FaultPolicy
	csv    FaultPolicy
	settle time.Duration
	log    *zap.SugaredLogger
}

// NewRunner builds a runner with per-kind fault policies. settle is the
// validating-phase pause for wizard jobs.
func NewRunner(wizard, csv FaultPolicy, settle time.Duration, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{wizard: wizard, csv: csv, settle: settle, log: log}
}

func (r *Runner) policyFor(kind JobKind) FaultPolicy {
	if kind == KindCSV {
		return r.csv
	}
	return r.wizard
}

// Continue advances the job until it reaches a terminal status or ctx is
// canceled. onUpdate is invoked after every recorded result and audit
// line so the caller can persist incrementally; the job passed in is
// mutated in place. A context cancellation leaves the job mid-run with
// its recorded results intact.
func (r *Runner) Continue(ctx context.Context, job *Job, onUpdate func(*Job)) (err error) {
	notify := func() {
		job.UpdatedAt = time.Now()
		if onUpdate != nil {
			onUpdate(job)
		}
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("runner panic", "job", job.ID, "panic", p)
			job.Audit(fmt.Sprintf("Unexpected runner error: %v", p))
			job.Status = StatusFailed
			notify()
			err = errors.Newf("runner panic on job %s: %v", job.ID, p)
		}
	}()

	switch job.Kind {
	case KindCSV:
		return r.continueCSV(ctx, job, notify)
	default:
		return r.continueWizard(ctx, job, notify)
	}
}

func (r *Runner) continueWizard(ctx context.Context, job *Job, notify func()) error {
	if job.Status == StatusValidating {
		if err := sleepCtx(ctx, r.settle); err != nil {
			return err
		}
		if !job.HasAuditPrefix("Validation passed") {
			job.Audit("Validation passed")
		}
		job.Status = StatusRunning
		notify()
	}
	if job.Status != StatusRunning {
		return nil
	}

	if job.ProcessedCount() == 0 && !job.HasAuditPrefix("Starting propagation") {
		job.Audit(fmt.Sprintf("Starting propagation for %d employees", job.TotalCount))
		notify()
	}

	for _, unitID := range job.RemainingUnits() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.emitMilestones(job, wizardMilestones, notify)
		if err := sleepCtx(ctx, r.wizard.UnitLatency(unitID)); err != nil {
			return err
		}
		res, err := r.walkUnit(ctx, r.wizard, unitID, "All systems updated")
		if err != nil {
			return err
		}
		job.Results = append(job.Results, res)
		job.Audit(unitAuditLine(res, "Updated"))
		notify()
		r.emitMilestones(job, wizardMilestones, notify)
	}

	r.finish(job, "Job completed: all changes propagated",
		"Job completed with %d failed employees", notify)
	return nil
}

func (r *Runner) continueCSV(ctx context.Context, job *Job, notify func()) error {
	if job.Status != StatusRunning {
		return nil
	}

	if job.ProcessedCount() == 0 && !job.HasAuditPrefix("Starting CSV import") {
		job.Audit(fmt.Sprintf("Starting CSV import of %d rows", job.TotalCount))
		notify()
	}

	for _, rowID := range job.RemainingUnits() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.emitMilestones(job, csvMilestones, notify)
		if err := sleepCtx(ctx, r.csv.UnitLatency(rowID)); err != nil {
			return err
		}

		var rec *ImportRecord
		if job.CSV != nil {
			rec, _ = job.CSV.Record(rowID)
		}
		if rec == nil || !rec.Valid() {
			// Invalid rows never leave the system of record step.
			res := invalidRowResult(rowID, rec)
			job.Results = append(job.Results, res)
			job.Audit(unitAuditLine(res, "Imported"))
			notify()
			r.emitMilestones(job, csvMilestones, notify)
			continue
		}

		res, err := r.walkUnit(ctx, r.csv, rowID, "Row imported and synced")
		if err != nil {
			return err
		}
		job.Results = append(job.Results, res)
		job.Audit(unitAuditLine(res, "Imported"))
		notify()
		r.emitMilestones(job, csvMilestones, notify)
	}

	r.finish(job, "Import completed: all rows applied",
		"Import completed with %d failed rows", notify)
	return nil
}

// walkUnit runs one unit through the pipeline. The policy decides up
// front whether the unit fails and where; steps after the failure are
// skipped. A context cancellation aborts before any result is recorded.
func (r *Runner) walkUnit(ctx context.Context, policy FaultPolicy, unitID, okMsg string) (UnitResult, error) {
	failStep, failMsg, failed := policy.PickFailure(unitID)

	res := UnitResult{UnitID: unitID, Steps: make(map[Step]StepState, len(Steps))}
	for _, s := range Steps {
		res.Steps[s] = StepPending
	}

	reached := false
	for i, s := range Steps {
		if reached {
			res.Steps[s] = StepSkipped
			continue
		}
		if i > 0 {
			if err := sleepCtx(ctx, policy.StepLatency(unitID)); err != nil {
				return UnitResult{}, err
			}
		}
		if failed && s == failStep {
			res.Steps[s] = StepFailed
			res.FailedStep = s
			res.Message = failMsg
			reached = true
			continue
		}
		res.Steps[s] = StepOK
	}
	res.OK = res.FailedStep == ""
	if res.OK {
		res.Message = okMsg
	}
	return res, nil
}

// unitAuditLine is the one narrative line recorded for every processed
// unit. A resumed run skips units with recorded results, so the line is
// never repeated.
func unitAuditLine(res UnitResult, okVerb string) string {
	if res.OK {
		return okVerb + " " + res.UnitID
	}
	return fmt.Sprintf("Failed %s: %s", res.UnitID, res.Message)
}

func invalidRowResult(rowID string, rec *ImportRecord) UnitResult {
	msg := "Row could not be matched to an employee"
	if rec != nil && len(rec.Issues) > 0 {
		msg = "Row failed validation: " + rec.Issues[0].Message
	} else if rec == nil {
		msg = "Row missing from import snapshot"
	}
	steps := make(map[Step]StepState, len(Steps))
	for _, s := range Steps {
		steps[s] = StepSkipped
	}
	steps[StepSystemOfRecord] = StepFailed
	return UnitResult{
		UnitID:     rowID,
		OK:         false,
		FailedStep: StepSystemOfRecord,
		Message:    msg,
		Steps:      steps,
	}
}

func (r *Runner) emitMilestones(job *Job, ms []milestone, notify func()) {
	pct := 0
	if job.TotalCount > 0 {
		pct = job.ProcessedCount() * 100 / job.TotalCount
	}
	for _, m := range ms {
		if pct >= m.pct && !job.HasAuditPrefix(m.prefix) {
			job.Audit(m.message)
			notify()
		}
	}
}

func (r *Runner) finish(job *Job, okMsg, errMsgf string, notify func()) {
	failures := job.FailureCount()
	if failures == 0 {
		job.Status = StatusCompleted
		if !job.HasAuditPrefix(okMsg) {
			job.Audit(okMsg)
		}
	} else {
		job.Status = StatusCompletedWithErrors
		msg := fmt.Sprintf(errMsgf, failures)
		if !job.HasAuditPrefix(msg) {
			job.Audit(msg)
		}
	}
	notify()
	r.log.Infow("job finished", "job", job.ID, "status", job.Status, "failures", failures)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
