package nipr

import (
	"context"
	"sync"
	"time"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/system"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
)

// Reaper periodically returns expired job leases to the pending queue
// so a crashed worker cannot wedge the global lock.
type Reaper struct {
	service  *Service
	interval time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Reaper)(nil)

// NewReaper constructs a reaper sweeping at the given interval.
func NewReaper(service *Service, interval time.Duration, log *logging.Logger) *Reaper {
	if log == nil {
		log = logging.NewDefault("nipr-reaper")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{service: service, interval: interval, log: log}
}

func (r *Reaper) Name() string { return "nipr-reaper" }

func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := r.service.ReleaseStaleLocks(runCtx); err != nil {
					r.log.WithError(err).Error("stale lock sweep failed")
				}
			}
		}
	}()

	r.log.Info("verification job reaper started")
	return nil
}

func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
