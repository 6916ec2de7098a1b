// Package nipr defines externally-executed license verification jobs
// tracked through a single-flight job queue.
package nipr

import "time"

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// LockLease is how long an acquired job's lease lasts before the reaper
// may hand it back to the queue.
const LockLease = 10 * time.Minute

// Job is a verification job executed by an external worker.
type Job struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	LastName        string     `json:"last_name"`
	NPN             string     `json:"npn"`
	SSNLast4        string     `json:"ssn_last4"`
	DOB             string     `json:"dob"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ResultFiles     []string   `json:"result_files,omitempty"`
	ResultCarriers  []string   `json:"result_carriers,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LockedUntil     *time.Time `json:"-"`
}

// AcquiredJob is the slice of a job handed to the external worker when
// it wins the acquire race.
type AcquiredJob struct {
	JobID    string `json:"job_id"`
	UserID   string `json:"user_id"`
	LastName string `json:"last_name"`
	NPN      string `json:"npn"`
	SSNLast4 string `json:"ssn_last4"`
	DOB      string `json:"dob"`
}
