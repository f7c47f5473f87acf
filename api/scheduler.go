/*
scheduler.go - Automated escalation scheduler

PURPOSE:
  Periodically makes sure every open request has a workflow and escalates
  current steps whose due date has passed.

DESIGN:
  - robfig/cron drives the schedule (standard spec or descriptor such as
    "@hourly" / "@every 30m")
  - A run that is still going when the next tick fires is skipped
  - Panics inside a run are recovered and logged
  - Only the current step of a workflow is ever escalated; later steps
    wait until they become current

USAGE:
  scheduler := api.NewEscalationScheduler(approvals, "@hourly", logger)
  if err := scheduler.Start(ctx); err != nil { ... }
  defer scheduler.Stop()

SEE ALSO:
  - handlers.go: RunEscalations endpoint (manual run)
  - approval/escalation.go: CheckEscalation
*/
package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Escalator is the part of approval.Service the scheduler drives.
type Escalator interface {
	SyncPending(ctx context.Context) (int, error)
	EscalateAll(ctx context.Context) (int, error)
}

// RunEscalation creates missing workflows, then escalates overdue steps.
func RunEscalation(ctx context.Context, esc Escalator, logger *zap.Logger) (created, escalated int, err error) {
	created, err = esc.SyncPending(ctx)
	if err != nil {
		return created, 0, fmt.Errorf("failed to sync pending requests: %w", err)
	}
	escalated, err = esc.EscalateAll(ctx)
	if err != nil {
		return created, escalated, fmt.Errorf("failed to escalate workflows: %w", err)
	}
	if created > 0 || escalated > 0 {
		logger.Info("escalation run finished",
			zap.Int("workflows_created", created),
			zap.Int("escalated", escalated))
	}
	return created, escalated, nil
}

// EscalationScheduler runs RunEscalation on a cron schedule.
type EscalationScheduler struct {
	Escalator Escalator
	Schedule  string
	Logger    *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
}

// NewEscalationScheduler creates a scheduler. It does nothing until Start.
func NewEscalationScheduler(esc Escalator, schedule string, logger *zap.Logger) *EscalationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationScheduler{
		Escalator: esc,
		Schedule:  schedule,
		Logger:    logger.Named("escalation"),
	}
}

// Start registers the job and starts the cron loop. Runs use ctx, so
// cancelling it aborts a run in progress; Stop must still be called.
func (s *EscalationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("escalation scheduler already started")
	}
	if _, err := cron.ParseStandard(s.Schedule); err != nil {
		return fmt.Errorf("invalid escalation schedule %q: %w", s.Schedule, err)
	}

	logger := cronLogger{s.Logger}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	id, err := c.AddFunc(s.Schedule, func() { s.RunNow(ctx) })
	if err != nil {
		return fmt.Errorf("failed to register escalation job: %w", err)
	}

	s.cron = c
	s.entryID = id
	c.Start()

	s.Logger.Info("escalation scheduler started",
		zap.String("schedule", s.Schedule),
		zap.Time("next_run", c.Entry(id).Next))
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.Logger.Info("escalation scheduler stopped")
}

// RunNow performs one pass and logs its outcome.
func (s *EscalationScheduler) RunNow(ctx context.Context) (created, escalated int, err error) {
	if ctx.Err() != nil {
		return 0, 0, ctx.Err()
	}
	created, escalated, err = RunEscalation(ctx, s.Escalator, s.Logger)
	if err != nil {
		s.Logger.Error("escalation run failed", zap.Error(err))
	}
	return created, escalated, err
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
