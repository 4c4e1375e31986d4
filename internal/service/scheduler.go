package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/choiwjun/blogflow/internal/config"
)

// Scheduler periodically asks the orchestrator to process due and
// retryable posts. It is a thin trigger; all publish logic lives in the
// orchestrator.
type Scheduler struct {
	config       *config.SchedulerConfig
	logger       *zap.Logger
	orchestrator *Orchestrator
	ticker       *time.Ticker
	stopCh       chan struct{}
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, orchestrator *Orchestrator) *Scheduler {
	return &Scheduler{
		config:       cfg,
		logger:       logger,
		orchestrator: orchestrator,
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := s.config.ParseInterval()
	if err != nil {
		s.logger.Error("Invalid scheduler interval", zap.String("interval", s.config.Interval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("interval", s.config.Interval))

	s.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.runOnce(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	summary, err := s.orchestrator.ProcessDue(ctx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Scheduled run failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Scheduled run finished",
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", duration))
}
