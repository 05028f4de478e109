package bulk

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/opusguard/rosterops/errors"
)

// draftSlot is the fixed bulk_drafts key for the single in-progress draft.
const draftSlot = "current"

func (s *JobStore) saveDraft(d *Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "marshal draft")
	}
	_, err = s.db.Exec(`
		INSERT INTO bulk_drafts (slot, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		draftSlot, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "save draft")
}

func (s *JobStore) loadDraft() (*Draft, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM bulk_drafts WHERE slot = ?`, draftSlot).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load draft")
	}
	var d Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, errors.Wrap(err, "unmarshal draft")
	}
	return &d, nil
}

func (s *JobStore) deleteDraft() error {
	_, err := s.db.Exec(`DELETE FROM bulk_drafts WHERE slot = ?`, draftSlot)
	return errors.Wrap(err, "delete draft")
}

func (s *JobStore) insertJob(job *Job) error {
	unitIDs, err := json.Marshal(job.UnitIDs)
	if err != nil {
		return errors.Wrap(err, "marshal unit ids")
	}
	draftSnap, err := json.Marshal(job.DraftSnapshot)
	if err != nil {
		return errors.Wrap(err, "marshal draft snapshot")
	}
	var csvSnap sql.NullString
	if job.CSV != nil {
		b, err := json.Marshal(job.CSV)
		if err != nil {
			return errors.Wrap(err, "marshal csv snapshot")
		}
		csvSnap = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin insert job")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO bulk_jobs (id, kind, created_at, created_by, status, total_count,
			changes_applied, effective_at, unit_ids, draft_snapshot, csv_snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), fmtTime(job.CreatedAt), job.CreatedBy, string(job.Status),
		job.TotalCount, boolInt(job.ChangesApplied), fmtTimePtr(job.EffectiveAt),
		string(unitIDs), string(draftSnap), csvSnap, fmtTime(job.UpdatedAt))
	if err != nil {
		return errors.Wrapf(err, "insert job %s", job.ID)
	}
	if err := syncAudit(tx, job, 0); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit insert job")
}

// persistJob syncs the job's mutable state to the database: the status
// row, any results not yet recorded, and any audit lines past the
// persisted count. Safe to call repeatedly; already-recorded results are
// skipped via the unique unit constraint.
func (s *JobStore) persistJob(job *Job) error {
	var csvSnap sql.NullString
	if job.CSV != nil {
		b, err := json.Marshal(job.CSV)
		if err != nil {
			return errors.Wrap(err, "marshal csv snapshot")
		}
		csvSnap = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin persist job")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE bulk_jobs SET status = ?, changes_applied = ?, csv_snapshot = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), boolInt(job.ChangesApplied), csvSnap, fmtTime(job.UpdatedAt), job.ID)
	if err != nil {
		return errors.Wrapf(err, "update job %s", job.ID)
	}

	var auditCount int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM bulk_job_audit WHERE job_id = ?`, job.ID).Scan(&auditCount); err != nil {
		return errors.Wrap(err, "count audit")
	}
	if err := syncAudit(tx, job, auditCount); err != nil {
		return err
	}

	var nextPos int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM bulk_job_results WHERE job_id = ?`, job.ID).Scan(&nextPos); err != nil {
		return errors.Wrap(err, "next result position")
	}
	for _, r := range job.Results {
		steps, err := json.Marshal(r.Steps)
		if err != nil {
			return errors.Wrap(err, "marshal result steps")
		}
		res, err := tx.Exec(`
			INSERT OR IGNORE INTO bulk_job_results (job_id, position, unit_id, ok, failed_step, message, steps)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.ID, nextPos, r.UnitID, boolInt(r.OK), string(r.FailedStep), r.Message, string(steps))
		if err != nil {
			return errors.Wrapf(err, "insert result %s/%s", job.ID, r.UnitID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			nextPos++
		}
	}
	return errors.Wrap(tx.Commit(), "commit persist job")
}

func syncAudit(tx *sql.Tx, job *Job, from int) error {
	for _, a := range job.AuditLog[min(from, len(job.AuditLog)):] {
		if _, err := tx.Exec(`INSERT INTO bulk_job_audit (job_id, at, message) VALUES (?, ?, ?)`,
			job.ID, fmtTime(a.At), a.Message); err != nil {
			return errors.Wrapf(err, "insert audit for %s", job.ID)
		}
	}
	return nil
}

// updateResult rewrites an existing result row in place. Used by retries
// and override annotation.
func (s *JobStore) updateResult(jobID string, r UnitResult) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return errors.Wrap(err, "marshal result steps")
	}
	_, err = s.db.Exec(`
		UPDATE bulk_job_results SET ok = ?, failed_step = ?, message = ?, steps = ?
		WHERE job_id = ? AND unit_id = ?`,
		boolInt(r.OK), string(r.FailedStep), r.Message, string(steps), jobID, r.UnitID)
	return errors.Wrapf(err, "update result %s/%s", jobID, r.UnitID)
}

// deleteResults removes recorded results for the given units so they can
// be reprocessed.
func (s *JobStore) deleteResults(jobID string, unitIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin delete results")
	}
	defer tx.Rollback()
	for _, id := range unitIDs {
		if _, err := tx.Exec(`DELETE FROM bulk_job_results WHERE job_id = ? AND unit_id = ?`, jobID, id); err != nil {
			return errors.Wrapf(err, "delete result %s/%s", jobID, id)
		}
	}
	return errors.Wrap(tx.Commit(), "commit delete results")
}

func (s *JobStore) loadJob(id string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, created_at, created_by, status, total_count,
			changes_applied, effective_at, unit_ids, draft_snapshot, csv_snapshot, updated_at
		FROM bulk_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load job %s", id)
	}
	if err := s.loadJobDetails(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) listJobs() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, created_at, created_by, status, total_count,
			changes_applied, effective_at, unit_ids, draft_snapshot, csv_snapshot, updated_at
		FROM bulk_jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate jobs")
	}
	for _, job := range jobs {
		if err := s.loadJobDetails(job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *JobStore) loadJobDetails(job *Job) error {
	rows, err := s.db.Query(`
		SELECT unit_id, ok, failed_step, message, steps
		FROM bulk_job_results WHERE job_id = ? ORDER BY position`, job.ID)
	if err != nil {
		return errors.Wrapf(err, "load results for %s", job.ID)
	}
	defer rows.Close()
	for rows.Next() {
		var r UnitResult
		var ok int
		var failedStep, stepsJSON string
		if err := rows.Scan(&r.UnitID, &ok, &failedStep, &r.Message, &stepsJSON); err != nil {
			return errors.Wrap(err, "scan result")
		}
		r.OK = ok != 0
		r.FailedStep = Step(failedStep)
		if err := json.Unmarshal([]byte(stepsJSON), &r.Steps); err != nil {
			return errors.Wrap(err, "unmarshal result steps")
		}
		job.Results = append(job.Results, r)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate results")
	}

	arows, err := s.db.Query(`
		SELECT at, message FROM bulk_job_audit WHERE job_id = ? ORDER BY id`, job.ID)
	if err != nil {
		return errors.Wrapf(err, "load audit for %s", job.ID)
	}
	defer arows.Close()
	for arows.Next() {
		var at, msg string
		if err := arows.Scan(&at, &msg); err != nil {
			return errors.Wrap(err, "scan audit")
		}
		t, err := parseTime(at)
		if err != nil {
			return err
		}
		job.AuditLog = append(job.AuditLog, AuditEntry{At: t, Message: msg})
	}
	return errors.Wrap(arows.Err(), "iterate audit")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var kind, status, createdAt, updatedAt, unitIDs, draftSnap string
	var effectiveAt, csvSnap sql.NullString
	var applied int
	err := row.Scan(&job.ID, &kind, &createdAt, &job.CreatedBy, &status, &job.TotalCount,
		&applied, &effectiveAt, &unitIDs, &draftSnap, &csvSnap, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Kind = JobKind(kind)
	job.Status = JobStatus(status)
	job.ChangesApplied = applied != 0
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if effectiveAt.Valid {
		t, err := parseTime(effectiveAt.String)
		if err != nil {
			return nil, err
		}
		job.EffectiveAt = &t
	}
	if err := json.Unmarshal([]byte(unitIDs), &job.UnitIDs); err != nil {
		return nil, errors.Wrap(err, "unmarshal unit ids")
	}
	if draftSnap != "" && draftSnap != "null" {
		var d Draft
		if err := json.Unmarshal([]byte(draftSnap), &d); err != nil {
			return nil, errors.Wrap(err, "unmarshal draft snapshot")
		}
		job.DraftSnapshot = &d
	}
	if csvSnap.Valid && csvSnap.String != "" {
		var snap ImportSnapshot
		if err := json.Unmarshal([]byte(csvSnap.String), &snap); err != nil {
			return nil, errors.Wrap(err, "unmarshal csv snapshot")
		}
		job.CSV = &snap
	}
	return &job, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
