package nipr

import (
	"context"
	"testing"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/nipr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage/memory"
)

func setup(t *testing.T) (*Service, *memory.Store, agent.User, agent.User) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, nil)

	ctx := context.Background()
	owner, err := store.CreateUser(ctx, agent.User{FirstName: "Ada", LastName: "Alvarez", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	other, err := store.CreateUser(ctx, agent.User{FirstName: "Ben", LastName: "Brooks", Email: "ben@example.com"})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	return svc, store, owner, other
}

func TestCreateIsIdempotentPerUser(t *testing.T) {
	svc, _, owner, _ := setup(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "12345"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !first.Created {
		t.Fatal("expected first call to create a job")
	}

	second, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "12345"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.Created {
		t.Fatal("expected second call to reuse the active job")
	}
	if second.Job.ID != first.Job.ID {
		t.Fatalf("expected job %s, got %s", first.Job.ID, second.Job.ID)
	}
}

func TestCreateForOtherUserRequiresAdmin(t *testing.T) {
	svc, _, owner, other := setup(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, owner, nipr.Job{UserID: other.ID, LastName: "Brooks", NPN: "999"}); err == nil {
		t.Fatal("expected non-admin to be rejected")
	}

	owner.IsAdmin = true
	result, err := svc.Create(ctx, owner, nipr.Job{UserID: other.ID, LastName: "Brooks", NPN: "999"})
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if result.Job.UserID != other.ID {
		t.Fatalf("expected job owned by %s, got %s", other.ID, result.Job.UserID)
	}
}

func TestAcquireIsSingleFlight(t *testing.T) {
	svc, _, owner, other := setup(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "111"}); err != nil {
		t.Fatalf("queue first: %v", err)
	}
	if _, err := svc.Create(ctx, other, nipr.Job{LastName: "Brooks", NPN: "222"}); err != nil {
		t.Fatalf("queue second: %v", err)
	}

	acquired, err := svc.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if acquired == nil {
		t.Fatal("expected a job to be acquired")
	}
	if acquired.UserID != owner.ID {
		t.Fatalf("expected oldest job first, got user %s", acquired.UserID)
	}

	// The second job must wait until the first lease is resolved.
	blocked, err := svc.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if blocked != nil {
		t.Fatalf("expected acquire to be blocked, got job %s", blocked.JobID)
	}

	if err := svc.Complete(ctx, acquired.JobID, true, []string{"report.pdf"}, []string{"Acme Life"}, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	next, err := svc.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after complete: %v", err)
	}
	if next == nil || next.UserID != other.ID {
		t.Fatalf("expected second job after completion, got %+v", next)
	}
}

func TestCompleteUpdatesVerifiedCarriers(t *testing.T) {
	svc, store, owner, _ := setup(t)
	ctx := context.Background()

	result, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "111"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.Complete(ctx, result.Job.ID, true, nil, []string{"Acme Life", "Umbrella Mutual"}, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	job, err := svc.Get(ctx, owner, result.Job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != nipr.StatusCompleted {
		t.Fatalf("expected completed status, got %s", job.Status)
	}
	if job.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", job.Progress)
	}

	user, err := store.GetUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(user.UniqueCarriers) != 2 {
		t.Fatalf("expected 2 verified carriers, got %v", user.UniqueCarriers)
	}
}

func TestFailedCompleteKeepsCarriers(t *testing.T) {
	svc, store, owner, _ := setup(t)
	ctx := context.Background()

	result, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "111"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.Complete(ctx, result.Job.ID, false, nil, nil, "portal timeout"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	job, err := svc.Get(ctx, owner, result.Job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != nipr.StatusFailed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
	if job.ErrorMessage != "portal timeout" {
		t.Fatalf("expected error message preserved, got %q", job.ErrorMessage)
	}

	user, err := store.GetUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(user.UniqueCarriers) != 0 {
		t.Fatalf("expected carriers untouched on failure, got %v", user.UniqueCarriers)
	}
}

func TestGetHidesOtherUsersJobs(t *testing.T) {
	svc, _, owner, other := setup(t)
	ctx := context.Background()

	result, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "111"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, other, result.Job.ID); err == nil {
		t.Fatal("expected other user's job to be hidden")
	}

	other.IsAdmin = true
	if _, err := svc.Get(ctx, other, result.Job.ID); err != nil {
		t.Fatalf("admin should see the job: %v", err)
	}
}

func TestUpdateProgressValidatesRange(t *testing.T) {
	svc, _, owner, _ := setup(t)
	ctx := context.Background()

	result, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "111"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateProgress(ctx, result.Job.ID, 101, nil); err == nil {
		t.Fatal("expected out-of-range progress to be rejected")
	}
	msg := "Scraping licenses"
	if err := svc.UpdateProgress(ctx, result.Job.ID, 40, &msg); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	job, err := svc.Get(ctx, owner, result.Job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Progress != 40 || job.ProgressMessage != msg {
		t.Fatalf("expected progress recorded, got %d %q", job.Progress, job.ProgressMessage)
	}
}

func TestReleaseStaleLocksIgnoresFreshLeases(t *testing.T) {
	svc, _, owner, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "111"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	released, err := svc.ReleaseStaleLocks(ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected no releases for a fresh lease, got %d", released)
	}
}

func TestHasPending(t *testing.T) {
	svc, _, owner, _ := setup(t)
	ctx := context.Background()

	pending, err := svc.HasPending(ctx)
	if err != nil {
		t.Fatalf("has pending: %v", err)
	}
	if pending {
		t.Fatal("expected empty queue")
	}

	if _, err := svc.Create(ctx, owner, nipr.Job{LastName: "Alvarez", NPN: "111"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	pending, err = svc.HasPending(ctx)
	if err != nil {
		t.Fatalf("has pending: %v", err)
	}
	if !pending {
		t.Fatal("expected a pending job")
	}
}
