package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of background work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Timeouter lets a job override the scheduler's run timeout.
type Timeouter interface {
	Timeout() time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	timeout time.Duration
}

// New returns a scheduler whose job runs are bounded by timeout (0 = none).
func New(log *slog.Logger, timeout time.Duration) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		log:     log.With(slog.String("component", "scheduler")),
		timeout: timeout,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// AddJob registers job under a cron spec ("@every 15m", "*/5 * * * *", ...).
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(context.Background(), job); err != nil {
			s.log.Error("job failed", slog.String("job", job.Name()), slog.String("err", err.Error()))
		}
	})
	if err != nil {
		return err
	}
	s.log.Info("job registered", slog.String("job", job.Name()), slog.String("schedule", schedule))
	return nil
}

// RunNow ejecuta el job fuera de horario.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	timeout := s.timeout
	if t, ok := job.(Timeouter); ok {
		timeout = t.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Run(ctx)
	s.log.Debug("job run", slog.String("job", job.Name()), slog.Duration("took", time.Since(start)), slog.Bool("ok", err == nil))
	return err
}
