// Package nipr manages license verification jobs: one pending queue,
// a single-flight acquire protocol for the external worker, and a
// reaper that returns expired leases to the queue.
package nipr

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/nipr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/metrics"
)

// Service manages verification jobs.
type Service struct {
	store storage.NIPRStore
	users storage.UserStore
	log   *logging.Logger
}

// New constructs a verification job service.
func New(store storage.NIPRStore, users storage.UserStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("nipr")
	}
	return &Service{store: store, users: users, log: log}
}

// CreateResult reports whether a job was newly created or an active
// one was reused.
type CreateResult struct {
	Job     nipr.Job `json:"job"`
	Created bool     `json:"created"`
}

// Create queues a verification job for a user. Creation is idempotent:
// if the user already has a pending or processing job, that job is
// returned instead of queueing a duplicate.
func (s *Service) Create(ctx context.Context, actor agent.User, j nipr.Job) (CreateResult, error) {
	if j.UserID == "" {
		j.UserID = actor.ID
	}
	if j.UserID != actor.ID && !actor.IsAdmin {
		return CreateResult{}, apperr.Forbidden("cannot queue verification for another agent")
	}
	if j.LastName == "" || j.NPN == "" {
		return CreateResult{}, apperr.BadRequest("last_name and npn are required")
	}

	if existing, err := s.store.GetActiveNIPRJobForUser(ctx, j.UserID); err == nil {
		return CreateResult{Job: existing, Created: false}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return CreateResult{}, err
	}

	created, err := s.store.CreateNIPRJob(ctx, j)
	if err != nil {
		return CreateResult{}, err
	}
	metrics.RecordNIPRTransition("queued")
	s.log.Infof("verification job %s queued for user %s", created.ID, created.UserID)
	return CreateResult{Job: created, Created: true}, nil
}

// Get retrieves a job. Non-admins can only see their own jobs.
func (s *Service) Get(ctx context.Context, actor agent.User, id string) (nipr.Job, error) {
	j, err := s.store.GetNIPRJob(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nipr.Job{}, apperr.NotFound("verification job not found")
	}
	if err != nil {
		return nipr.Job{}, err
	}
	if j.UserID != actor.ID && !actor.IsAdmin {
		return nipr.Job{}, apperr.NotFound("verification job not found")
	}
	return j, nil
}

// Acquire hands the oldest pending job to the external worker, or nil
// when the queue is empty or another job holds the global lock.
func (s *Service) Acquire(ctx context.Context) (*nipr.AcquiredJob, error) {
	acquired, err := s.store.AcquireNIPRJob(ctx)
	if err != nil {
		return nil, err
	}
	if acquired != nil {
		metrics.RecordNIPRTransition("acquired")
		s.log.Infof("verification job %s acquired", acquired.JobID)
	}
	return acquired, nil
}

// UpdateProgress records worker progress on a job.
func (s *Service) UpdateProgress(ctx context.Context, id string, progress int, message *string) error {
	if progress < 0 || progress > 100 {
		return apperr.BadRequest("progress must be between 0 and 100")
	}
	err := s.store.UpdateNIPRJobProgress(ctx, id, progress, message)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("verification job not found")
	}
	return err
}

// Complete finishes a job. On success the user's verified carrier list
// is replaced with the carriers the worker found.
func (s *Service) Complete(ctx context.Context, id string, success bool, files, carriers []string, errMsg string) error {
	job, err := s.store.GetNIPRJob(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("verification job not found")
	}
	if err != nil {
		return err
	}

	if err := s.store.CompleteNIPRJob(ctx, id, success, files, carriers, errMsg); err != nil {
		return err
	}

	if success {
		metrics.RecordNIPRTransition("completed")
		if len(carriers) > 0 {
			if err := s.users.SetUniqueCarriers(ctx, job.UserID, carriers); err != nil {
				s.log.WithError(err).Warnf("carrier list update failed for user %s", job.UserID)
			}
		}
	} else {
		metrics.RecordNIPRTransition("failed")
	}
	s.log.Infof("verification job %s completed (success=%v)", id, success)
	return nil
}

// ReleaseStaleLocks resets processing jobs whose lease expired back to
// pending and reports how many were reset.
func (s *Service) ReleaseStaleLocks(ctx context.Context) (int, error) {
	released, err := s.store.ReleaseStaleNIPRLocks(ctx)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		metrics.RecordNIPRStaleReleases(released)
		s.log.Warnf("released %d stale verification job locks", released)
	}
	return released, nil
}

// HasPending reports whether any job is waiting in the queue, so
// workers can poll cheaply.
func (s *Service) HasPending(ctx context.Context) (bool, error) {
	return s.store.HasPendingNIPRJobs(ctx)
}

// CompletionResult reports whether a user's verification has run.
type CompletionResult struct {
	Completed      bool     `json:"completed"`
	UniqueCarriers []string `json:"unique_carriers"`
}

// CheckCompleted reports whether a user's license verification has
// finished: a successful job leaves the verified carrier list on the
// user row. Non-admins can only check themselves.
func (s *Service) CheckCompleted(ctx context.Context, actor agent.User, userID string) (CompletionResult, error) {
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID && !actor.IsAdmin {
		return CompletionResult{}, apperr.Forbidden("cannot check verification for another agent")
	}
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return CompletionResult{}, apperr.NotFound("agent not found")
	}
	if err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{
		Completed:      len(u.UniqueCarriers) > 0,
		UniqueCarriers: u.UniqueCarriers,
	}, nil
}
