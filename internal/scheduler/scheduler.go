package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"delivery-platform/internal/shared/logger"
)

// Job is one periodic task.
type Job struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Run     func(ctx context.Context) error

	inflight atomic.Bool
}

// Scheduler runs registered jobs on their own tickers. A job that is still
// running when its next tick fires is skipped, never run concurrently with
// itself.
type Scheduler struct {
	jobs   []*Job
	logger *logger.Logger
	wg     sync.WaitGroup
}

// New constructs an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{logger: log}
}

// Register adds a job; call before Start.
func (s *Scheduler) Register(name string, every, timeout time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, &Job{Name: name, Every: every, Timeout: timeout, Run: run})
}

// Start launches one goroutine per job. Each job also runs once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()

			s.runOnce(ctx, job)

			ticker := time.NewTicker(job.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runOnce(ctx, job)
				}
			}
		}(job)
	}
}

// Wait blocks until every job goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runOnce(ctx context.Context, job *Job) {
	// overlap guard: skip the tick if the previous run is still going
	if !job.inflight.CompareAndSwap(false, true) {
		s.logger.Debug(ctx, "job_skipped", "Previous run of "+job.Name+" still in flight", nil)
		return
	}
	defer job.inflight.Store(false)

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	if err := job.Run(runCtx); err != nil {
		s.logger.Error(ctx, "job_failed", "Job "+job.Name+" failed", err)
	}
}
