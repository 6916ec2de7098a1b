package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/nipr"
)

const niprJobColumns = `id, user_id, last_name, npn, ssn_last4, dob, status, progress,
	progress_message, result_files, result_carriers, error_message,
	created_at, started_at, completed_at, locked_until`

func (s *Store) CreateNIPRJob(ctx context.Context, j nipr.Job) (nipr.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = nipr.StatusPending
	}
	j.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nipr_jobs (id, user_id, last_name, npn, ssn_last4, dob, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, j.ID, j.UserID, j.LastName, j.NPN, j.SSNLast4, toNullDate(j.DOB), j.Status, j.Progress, j.CreatedAt)
	if err != nil {
		return nipr.Job{}, err
	}
	return j, nil
}

func (s *Store) GetNIPRJob(ctx context.Context, id string) (nipr.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+niprJobColumns+` FROM nipr_jobs WHERE id = $1`, id)
	return scanNIPRJob(row)
}

// GetActiveNIPRJobForUser returns the user's most recent pending or
// processing job, used to keep job creation idempotent per user.
func (s *Store) GetActiveNIPRJobForUser(ctx context.Context, userID string) (nipr.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+niprJobColumns+` FROM nipr_jobs
		WHERE user_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	return scanNIPRJob(row)
}

// AcquireNIPRJob claims the oldest pending job in a single statement.
// The check_processing CTE blocks the claim while any processing job
// still holds a live lease, so exactly one job runs at a time. SKIP
// LOCKED keeps concurrent workers from queueing behind one another.
func (s *Store) AcquireNIPRJob(ctx context.Context) (*nipr.AcquiredJob, error) {
	row := s.db.QueryRowContext(ctx, `
		WITH check_processing AS (
			SELECT COUNT(*) AS cnt
			FROM nipr_jobs
			WHERE status = 'processing'
			  AND (locked_until IS NULL OR locked_until > NOW())
		),
		next_job AS (
			SELECT id
			FROM nipr_jobs
			WHERE status = 'pending'
			  AND (SELECT cnt FROM check_processing) = 0
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE nipr_jobs j
		SET status = 'processing',
		    started_at = NOW(),
		    locked_until = NOW() + INTERVAL '10 minutes'
		FROM next_job
		WHERE j.id = next_job.id
		RETURNING j.id, j.user_id, j.last_name, j.npn, j.ssn_last4, j.dob
	`)

	var (
		acq nipr.AcquiredJob
		dob sql.NullTime
	)
	err := row.Scan(&acq.JobID, &acq.UserID, &acq.LastName, &acq.NPN, &acq.SSNLast4, &dob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acq.DOB = dateString(dob)
	return &acq, nil
}

func (s *Store) UpdateNIPRJobProgress(ctx context.Context, id string, progress int, message *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE nipr_jobs
		SET progress = $2,
		    progress_message = COALESCE($3, progress_message)
		WHERE id = $1
	`, id, progress, message)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CompleteNIPRJob(ctx context.Context, id string, success bool, files, carriers []string, errMsg string) error {
	status := nipr.StatusCompleted
	message := "Complete!"
	if !success {
		status = nipr.StatusFailed
		message = "Failed"
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE nipr_jobs
		SET status = $2,
		    progress = 100,
		    progress_message = $3,
		    result_files = $4,
		    result_carriers = $5,
		    error_message = $6,
		    completed_at = NOW(),
		    locked_until = NULL
		WHERE id = $1
	`, id, status, message, pq.Array(files), pq.Array(carriers), nullString(errMsg))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ReleaseStaleNIPRLocks(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE nipr_jobs
		SET status = 'pending',
		    started_at = NULL,
		    locked_until = NULL
		WHERE status = 'processing' AND locked_until < NOW()
	`)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

func (s *Store) HasPendingNIPRJobs(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM nipr_jobs WHERE status = 'pending')
	`).Scan(&exists)
	return exists, err
}

func scanNIPRJob(row rowScanner) (nipr.Job, error) {
	var (
		j               nipr.Job
		dob             sql.NullTime
		progressMessage sql.NullString
		files, carriers pq.StringArray
		errMsg          sql.NullString
		startedAt       sql.NullTime
		completedAt     sql.NullTime
		lockedUntil     sql.NullTime
	)
	err := row.Scan(&j.ID, &j.UserID, &j.LastName, &j.NPN, &j.SSNLast4, &dob,
		&j.Status, &j.Progress, &progressMessage, &files, &carriers, &errMsg,
		&j.CreatedAt, &startedAt, &completedAt, &lockedUntil)
	if err != nil {
		return nipr.Job{}, err
	}
	j.DOB = dateString(dob)
	j.ProgressMessage = progressMessage.String
	j.ResultFiles = files
	j.ResultCarriers = carriers
	j.ErrorMessage = errMsg.String
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	j.LockedUntil = timePtr(lockedUntil)
	return j, nil
}
