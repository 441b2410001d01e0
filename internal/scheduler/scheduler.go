// Package scheduler releases escrow holds whose confirmation window has passed
// and sends the payer reminders leading up to it.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stipend-escrow-ledger/internal/config"
	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
)

// Releaser performs the per-hold work of a sweep
type Releaser interface {
	AutoRelease(ctx context.Context, holdID uuid.UUID) (*escrowdomain.Hold, error)
	IssueReminder(ctx context.Context, h *escrowdomain.Hold, level int, releaseAt time.Time) (bool, error)
}

// Lease keeps concurrent replicas from sweeping at the same time
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SweepReport summarizes one release sweep
type SweepReport struct {
	Eligible int
	Released int
	Skipped  int
}

// ReminderReport summarizes one reminder pass
type ReminderReport struct {
	First int
	Final int
}

type Scheduler struct {
	holds     escrowdomain.Repository
	releaser  Releaser
	lease     Lease
	escrowCfg config.EscrowConfig
	cfg       config.SchedulerConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduler(
	holds escrowdomain.Repository,
	releaser Releaser,
	lease Lease,
	escrowCfg config.EscrowConfig,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		holds:     holds,
		releaser:  releaser,
		lease:     lease,
		escrowCfg: escrowCfg,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run ticks every SCHEDULER_INTERVAL until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Auto-release scheduler started", "interval", s.cfg.Interval, "window", s.escrowCfg.AutoReleaseWindow)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Scheduler tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Auto-release scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one release sweep and then one reminder pass if this replica wins
// the lease
func (s *Scheduler) Tick(ctx context.Context) error {
	acquired, err := s.lease.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Debug("Another replica holds the scheduler lease, skipping tick")
		return nil
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release scheduler lease", "error", err)
		}
	}()

	now := s.now().UTC()

	if _, err := s.SweepEligibleHolds(ctx, now.Add(-s.escrowCfg.AutoReleaseWindow)); err != nil {
		return err
	}

	_, err = s.SendReminders(ctx, now)
	return err
}

// SweepEligibleHolds auto-releases every HELD hold captured before cutoff.
// A hold that fails is logged and skipped; the sweep carries on.
func (s *Scheduler) SweepEligibleHolds(ctx context.Context, cutoff time.Time) (SweepReport, error) {
	var (
		report SweepReport
		cursor escrowdomain.Cursor
	)

	for {
		batch, err := s.holds.ListEligibleForRelease(ctx, cutoff, cursor, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("Failed to list holds eligible for release", "cutoff", cutoff, "error", err)
			return report, err
		}

		for _, h := range batch {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			report.Eligible++
			if _, err := s.releaser.AutoRelease(ctx, h.ID); err != nil {
				report.Skipped++
				s.logger.Warn("Skipping hold in release sweep",
					"hold_id", h.ID.String(),
					"held_at", h.HeldAt,
					"error", err,
				)
				continue
			}
			report.Released++
		}

		if len(batch) < s.cfg.BatchSize {
			break
		}
		last := batch[len(batch)-1]
		cursor = escrowdomain.Cursor{HeldAt: last.HeldAt, ID: last.ID}
	}

	if report.Eligible > 0 {
		s.logger.Info("Release sweep finished",
			"cutoff", cutoff,
			"eligible", report.Eligible,
			"released", report.Released,
			"skipped", report.Skipped,
		)
	}
	return report, nil
}

// SendReminders queues the final reminder before the first so a hold that
// missed day 7 only hears about the imminent release. Holds already past the
// release deadline get no reminder.
func (s *Scheduler) SendReminders(ctx context.Context, now time.Time) (ReminderReport, error) {
	var report ReminderReport
	deadline := now.Add(-s.escrowCfg.AutoReleaseWindow)

	final, err := s.remind(ctx, escrowdomain.ReminderFinal, now.Add(-s.escrowCfg.FinalReminderAfter), deadline)
	if err != nil {
		return report, err
	}
	report.Final = final

	first, err := s.remind(ctx, escrowdomain.ReminderFirst, now.Add(-s.escrowCfg.FirstReminderAfter), deadline)
	if err != nil {
		return report, err
	}
	report.First = first

	return report, nil
}

func (s *Scheduler) remind(ctx context.Context, level int, heldBefore, heldAfter time.Time) (int, error) {
	sent := 0
	for {
		batch, err := s.holds.ListDueForReminder(ctx, heldBefore, heldAfter, level, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("Failed to list holds due for reminder", "level", level, "error", err)
			return sent, err
		}

		progressed := 0
		for _, h := range batch {
			releaseAt := h.HeldAt.Add(s.escrowCfg.AutoReleaseWindow)
			ok, err := s.releaser.IssueReminder(ctx, h, level, releaseAt)
			if err != nil {
				s.logger.Warn("Failed to issue reminder", "hold_id", h.ID.String(), "level", level, "error", err)
				continue
			}
			if ok {
				progressed++
			}
		}
		sent += progressed

		// Failed holds stay due, so only page again when the batch moved forward
		if len(batch) < s.cfg.BatchSize || progressed == 0 {
			return sent, nil
		}
	}
}
