// Package sweeper removes expired drafts on a cron schedule.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Expirer deletes the drafts whose expiry is at or before now and reports how many it removed.
type Expirer interface {
	ExpireDrafts(ctx context.Context, now time.Time) (int, error)
}

type Sweeper struct {
	schedule string
	expirer  Expirer
	cron     *cron.Cron
	now      func() time.Time
	logger   *slog.Logger
}

func New(schedule string, expirer Expirer, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	s := &Sweeper{
		schedule: schedule,
		expirer:  expirer,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("module", "draft_sweeper", "schedule", schedule),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Sweeper) Validate() error {
	if s.expirer == nil {
		return errors.New("sweeper needs a draft expirer")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Start schedules the sweep. Overlapping runs are skipped and panics are recovered.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting draft sweeper")

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.logger.Info("Sweep job scheduled", "id", id)
	s.cron.Start()

	return nil
}

// Sweep runs one expiry pass and returns the number of drafts removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	started := s.now()

	count, err := s.expirer.ExpireDrafts(ctx, started)
	if err != nil {
		s.logger.ErrorContext(ctx, "Draft sweep finished with errors", "removed", count, "error", err)

		return count
	}

	s.logger.InfoContext(ctx, "Draft sweep finished", "removed", count, "duration", time.Since(started))

	return count
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.logger.Info("Stopping draft sweeper")

	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
