package maintenance

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// AddJob registers a named job under a standard 5-field cron expression.
func (s *Scheduler) AddJob(schedule, name string, job func() error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.logger.Info("Running scheduled job", slog.String("job", name))
		if err := job(); err != nil {
			s.logger.Error("Scheduled job failed",
				slog.String("job", name),
				slog.String("error", err.Error()))
		}
	})
	return err
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
