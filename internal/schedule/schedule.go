// Package schedule triggers batches on a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/orchestrator"
)

// Starter launches a batch.
type Starter interface {
	Start(force bool) (string, error)
}

// Scheduler runs Starter.Start on a standard five-field cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	logger  *zap.Logger
}

// New validates the cron expression and returns a stopped Scheduler.
func New(expr string, starter Starter, logger *zap.Logger) (*Scheduler, error) {
	if starter == nil {
		return nil, errors.New("schedule: starter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:    cron.New(),
		starter: starter,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(expr, s.trigger); err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return s, nil
}

// Start begins firing triggers in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the schedule and waits for a running trigger to return or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) trigger() {
	id, err := s.starter.Start(false)
	switch {
	case errors.Is(err, orchestrator.ErrBatchRunning):
		s.logger.Info("scheduled batch skipped; previous batch still running")
	case err != nil:
		s.logger.Error("scheduled batch failed to start", zap.Error(err))
	default:
		s.logger.Info("scheduled batch started", zap.String("batch_id", id))
	}
}
