package bulk

import (
	"context"
	"fmt"

	"github.com/opusguard/rosterops/errors"
)

// RetryAppSync reattempts the apps-and-integrations step for failed
// units of a finished job. Only units that failed at that final step are
// eligible; earlier-step failures need a full row retry. An empty unitIDs
// means every eligible unit. The retry runs under its own single-flight
// guard; a concurrent retry of the same job is a no-op.
//
// The one-time dataset commit is not reopened by a successful retry: the
// unit's downstream sync is repaired, nothing more.
func (s *JobStore) RetryAppSync(ctx context.Context, jobID string, unitIDs []string) error {
	if !s.sched.TryAcquireRetry(jobID) {
		return nil
	}
	defer s.sched.ReleaseRetry(jobID)

	job, err := s.loadJob(jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return errors.NewInvalidRequestError("job %s is still running", jobID)
	}

	requested := map[string]struct{}{}
	for _, id := range unitIDs {
		requested[id] = struct{}{}
	}
	policy := s.runner.policyFor(job.Kind)

	retried, recovered := 0, 0
	for i := range job.Results {
		r := &job.Results[i]
		if r.OK || r.FailedStep != StepThirdParty {
			continue
		}
		if len(requested) > 0 {
			if _, want := requested[r.UnitID]; !want {
				continue
			}
		}
		if err := sleepCtx(ctx, policy.UnitLatency(r.UnitID)); err != nil {
			return err
		}
		retried++
		if policy.RetrySucceeds(r.UnitID) {
			r.Steps[StepThirdParty] = StepOK
			r.FailedStep = ""
			r.OK = true
			r.Message = "Apps & integrations synced on retry"
			if err := s.updateResult(jobID, *r); err != nil {
				return err
			}
			job.Audit("App sync retry succeeded for " + r.UnitID)
			recovered++
		} else {
			job.Audit("App sync retry failed for " + r.UnitID)
		}
	}
	if retried == 0 {
		return errors.NewInvalidRequestError("job %s has no failures eligible for app sync retry", jobID)
	}

	if job.FailureCount() == 0 && job.Status == StatusCompletedWithErrors {
		job.Status = StatusCompleted
		job.Audit("All remaining failures resolved by retry")
	}
	if err := s.persistJob(job); err != nil {
		return err
	}
	s.notify(jobID)
	s.log.Infow("app sync retry finished", "job", jobID, "retried", retried, "recovered", recovered)
	return nil
}

// RetryCSVRows clears the recorded results for the given rows of a
// finished import and reruns them through the full pipeline. note, when
// non-empty, is included in the audit line. The mutation runs under the
// retry guard; a concurrent retry of the same job is a no-op.
func (s *JobStore) RetryCSVRows(ctx context.Context, jobID string, rowIDs []string, note string) error {
	if !s.sched.TryAcquireRetry(jobID) {
		return nil
	}
	defer s.sched.ReleaseRetry(jobID)

	job, err := s.loadJob(jobID)
	if err != nil {
		return err
	}
	if job.Kind != KindCSV {
		return errors.NewInvalidRequestError("job %s is not a csv import", jobID)
	}
	if !job.Status.Terminal() {
		return errors.NewInvalidRequestError("job %s is still running", jobID)
	}

	var eligible []string
	for _, id := range rowIDs {
		if r, ok := job.Result(id); ok && !r.OK {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		return errors.NewInvalidRequestError("no failed rows to retry on job %s", jobID)
	}

	if err := s.deleteResults(jobID, eligible); err != nil {
		return err
	}
	// Reload so the in-memory results match what was just deleted.
	job, err = s.loadJob(jobID)
	if err != nil {
		return err
	}
	job.Status = StatusRunning
	msg := fmt.Sprintf("Manual retry requested for %d row(s)", len(eligible))
	if note != "" {
		msg += ": " + note
	}
	job.Audit(msg)
	if err := s.persistJob(job); err != nil {
		return err
	}
	s.notify(jobID)
	s.EnsureJobRunning(context.WithoutCancel(ctx), jobID)
	return nil
}

// RemediateCSVRow fixes an import row on the job's stored snapshot:
// pointing it at the right employee and clearing its recorded issues.
// Typically followed by RetryCSVRows for the same row.
func (s *JobStore) RemediateCSVRow(jobID, rowID, resolvedEmployeeID string, clearIssues bool) error {
	job, err := s.loadJob(jobID)
	if err != nil {
		return err
	}
	if job.Kind != KindCSV || job.CSV == nil {
		return errors.NewInvalidRequestError("job %s is not a csv import", jobID)
	}
	rec, ok := job.CSV.Record(rowID)
	if !ok {
		return errors.NewNotFoundError("row %s not found on job %s", rowID, jobID)
	}

	if resolvedEmployeeID != "" {
		if _, err := s.dir.GetEmployee(resolvedEmployeeID); err != nil {
			return err
		}
		rec.ResolvedEmployeeID = resolvedEmployeeID
		// Drop any stale identity issue now that the row resolves.
		kept := rec.Issues[:0]
		for _, is := range rec.Issues {
			if is.Field != "identity" {
				kept = append(kept, is)
			}
		}
		rec.Issues = kept
	}
	if clearIssues {
		rec.Issues = nil
	}
	job.CSV.Recount()
	job.Audit(fmt.Sprintf("Row %s remediated", rowID))
	if err := s.persistJob(job); err != nil {
		return err
	}
	s.notify(jobID)
	return nil
}
