// Package scheduler runs recurring jobs on fixed intervals. State is an
// explicit table of {job id, next fire time} driven by one loop that arms a
// single timer for the nearest due job, so there is never a per-job timer
// handle to leak. Every execution is recorded as a job-run row; rows left
// "running" by a dead process are marked interrupted on boot.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/store"
)

// Job is one recurring task. Run returns a detail payload (JSON outcome)
// persisted on the job-run row.
type Job struct {
	ID       string
	Interval time.Duration
	Run      func(ctx context.Context) (detail string, err error)
}

type entry struct {
	job      Job
	nextFire time.Time
}

// Scheduler owns the fire-time table and the audit trail.
type Scheduler struct {
	store   store.Store
	entries []entry
	now     func() time.Time
}

// Option adjusts Scheduler construction.
type Option func(*Scheduler)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New builds a scheduler over the given jobs. All jobs fire once shortly
// after start, then recur on their intervals.
func New(st store.Store, jobs []Job, opts ...Option) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, eris.New("scheduler: no jobs configured")
	}
	s := &Scheduler{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	start := s.now()
	for _, j := range jobs {
		if j.Interval <= 0 {
			return nil, eris.Errorf("scheduler: job %s has no interval", j.ID)
		}
		s.entries = append(s.entries, entry{job: j, nextFire: start})
	}
	return s, nil
}

// nearest returns the index of the entry due soonest.
func (s *Scheduler) nearest() int {
	best := 0
	for i := 1; i < len(s.entries); i++ {
		if s.entries[i].nextFire.Before(s.entries[best].nextFire) {
			best = i
		}
	}
	return best
}

// Start reconciles orphaned runs, then blocks driving the loop until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	orphans, err := s.store.ReconcileInterrupted(ctx)
	if err != nil {
		return err
	}
	if orphans > 0 {
		zap.L().Warn("reconciled interrupted job runs", zap.Int("count", orphans))
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		idx := s.nearest()
		wait := time.Until(s.entries[idx].nextFire)
		if wait < 0 {
			wait = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		s.execute(ctx, &s.entries[idx])
	}
}

// execute runs one job with its audit row and re-arms its fire time. A job
// failure is recorded, never fatal to the loop.
func (s *Scheduler) execute(ctx context.Context, e *entry) {
	run := &model.JobRun{ID: uuid.NewString(), Job: e.job.ID}
	if err := s.store.CreateJobRun(ctx, run); err != nil {
		zap.L().Error("create job run", zap.String("job", e.job.ID), zap.Error(err))
	}

	detail, err := e.job.Run(ctx)
	status := model.JobStatusDone
	if err != nil {
		status = model.JobStatusFailed
		if detail == "" {
			detail = err.Error()
		}
		zap.L().Warn("job failed", zap.String("job", e.job.ID), zap.Error(err))
	} else {
		zap.L().Info("job done", zap.String("job", e.job.ID))
	}

	if ferr := s.store.FinishJobRun(ctx, run.ID, status, detail); ferr != nil {
		zap.L().Error("finish job run", zap.String("job", e.job.ID), zap.Error(ferr))
	}
	e.nextFire = s.now().Add(e.job.Interval)
}
