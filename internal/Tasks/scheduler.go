package tasks

import (
	"context"
	"fmt"
	"time"

	"hotel-relay/internal/metrics"
	"hotel-relay/internal/repository"
	"hotel-relay/internal/reviews"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const PoolSampleSchedule = "@every 30s"

// Scheduler runs the periodic maintenance jobs of the relay process.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
		logger: logger,
	}
}

// AddReviewReload reparses the review CSV files on schedule.
func (s *Scheduler) AddReviewReload(schedule string, catalog *reviews.Catalog) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := catalog.Reload(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("scheduled review reload finished with errors")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule review reload %q: %w", schedule, err)
	}
	return nil
}

// AddPoolSampler publishes the store pool statistics as gauges.
func (s *Scheduler) AddPoolSampler(schedule string, store repository.MessageRepo) error {
	_, err := s.cron.AddFunc(schedule, func() { SamplePool(store) })
	if err != nil {
		return fmt.Errorf("schedule pool sampler %q: %w", schedule, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

func SamplePool(store repository.MessageRepo) {
	stats := store.Stats()
	metrics.PoolConnections.WithLabelValues("acquired").Set(float64(stats.Acquired))
	metrics.PoolConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	metrics.PoolConnections.WithLabelValues("total").Set(float64(stats.Total))
	metrics.PoolConnections.WithLabelValues("max").Set(float64(stats.Max))
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
