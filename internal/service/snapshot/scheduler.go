package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the aggregator on a cron schedule, by default nightly so
// every organization gets a dated compliance trend line.
type Scheduler struct {
	aggregator *Aggregator
	cron       *cron.Cron
	schedule   string
	logger     *zap.Logger
}

// NewScheduler creates a scheduler; schedule is a standard five-field cron
// expression.
func NewScheduler(aggregator *Aggregator, schedule string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		cron:       cron.New(cron.WithLocation(time.UTC)),
		schedule:   schedule,
		logger:     logger.Named("snapshot_scheduler"),
	}
}

// Start registers the job and starts the cron loop. The run context is bounded
// so a hung run cannot overlap the next one indefinitely.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()

		if err := s.aggregator.RunAll(runCtx, time.Now().UTC()); err != nil {
			s.logger.Error("scheduled snapshot run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("registering snapshot schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("snapshot scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("snapshot scheduler stopped")
}
