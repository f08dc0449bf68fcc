// workers/scheduler.go
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RotationJobName = "weekly-rotation"
	SyncJobName     = "nightly-stat-sync"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler owns the two recurring jobs. Both run in singleton mode, so a
// slow run delays the next firing instead of overlapping it.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *zap.Logger
}

// NewScheduler registers weekly rotation (Friday 18:00) and nightly sync
// (00:00) in loc. Extra options are passed to gocron, e.g. a test clock.
func NewScheduler(ctx context.Context, loc *time.Location, rotate, sync JobFunc, logger *zap.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]gocron.SchedulerOption{gocron.WithLocation(loc)}, opts...)
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, logger: logger}

	listeners := gocron.WithEventListeners(
		gocron.BeforeJobRuns(func(jobID uuid.UUID, jobName string) {
			logger.Info("[Scheduler] ▶️ Job starting", zap.String("job", jobName), zap.Stringer("job_id", jobID))
		}),
		gocron.AfterJobRuns(func(jobID uuid.UUID, jobName string) {
			logger.Info("[Scheduler] ✅ Job finished", zap.String("job", jobName), zap.Stringer("job_id", jobID))
		}),
		gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
			logger.Error("[Scheduler] ❌ Job failed", zap.String("job", jobName), zap.Stringer("job_id", jobID), zap.Error(err))
		}),
	)

	_, err = sched.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Friday), gocron.NewAtTimes(gocron.NewAtTime(18, 0, 0))),
		gocron.NewTask(func() error { return rotate(ctx) }),
		gocron.WithName(RotationJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		listeners,
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register %s: %w", RotationJobName, err)
	}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(func() error { return sync(ctx) }),
		gocron.WithName(SyncJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		listeners,
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register %s: %w", SyncJobName, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	for name, next := range s.NextRuns() {
		s.logger.Info("[Scheduler] 🗓️ Job scheduled", zap.String("job", name), zap.Time("next_run", next))
	}
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// NextRuns maps job names to their next firing time.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, j := range s.sched.Jobs() {
		next, err := j.NextRun()
		if err != nil {
			continue
		}
		out[j.Name()] = next
	}
	return out
}

// RunNow fires the named job outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	for _, j := range s.sched.Jobs() {
		if j.Name() == name {
			return j.RunNow()
		}
	}
	return fmt.Errorf("no job named %q", name)
}
