package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/email"
	"github.com/ErlanBelekov/bloodbank/internal/metrics"
	"github.com/robfig/cron/v3"
)

// expirySweeper is the part of InventoryUsecase the sweeper drives.
type expirySweeper interface {
	SweepExpired(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error)
}

// Sweeper runs the inventory expiry sweep on a cron schedule and mails a
// report whenever a run expires something.
type Sweeper struct {
	inventory expirySweeper
	sender    email.Sender
	reportTo  []string
	schedule  cron.Schedule
	logger    *slog.Logger
	now       func() time.Time
}

// NewSweeper parses spec as a standard cron expression or descriptor
// ("@every 5m", "@hourly"). An empty reportTo disables the report.
func NewSweeper(inventory expirySweeper, sender email.Sender, reportTo []string, spec string, logger *slog.Logger) (*Sweeper, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	return &Sweeper{
		inventory: inventory,
		sender:    sender,
		reportTo:  reportTo,
		schedule:  sched,
		logger:    logger.With("component", "sweeper"),
		now:       time.Now,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper started")

	for {
		now := s.now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("sweeper shut down")
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep at the current time.
func (s *Sweeper) RunOnce(ctx context.Context) {
	start := time.Now()
	now := s.now()

	changed, err := s.inventory.SweepExpired(ctx, now)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	metrics.SweepExpiredUnits.Add(float64(len(changed)))
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "expiry sweep", "error", err, "expired_before_error", len(changed))
		return
	}
	metrics.SweepRunsTotal.WithLabelValues("success").Inc()

	if len(changed) == 0 {
		s.logger.DebugContext(ctx, "expiry sweep found nothing")
		return
	}
	s.logger.InfoContext(ctx, "expiry sweep marked units expired", "count", len(changed))

	if len(s.reportTo) == 0 {
		return
	}
	if err := s.sender.Send(ctx, email.ExpiryReport(s.reportTo, changed, now)); err != nil {
		s.logger.ErrorContext(ctx, "send expiry report", "to", s.reportTo, "error", err)
	}
}
