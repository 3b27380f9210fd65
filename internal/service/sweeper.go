package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yourusername/fleet-api/internal/domain/repository"
)

// CodeSweeper periodically deletes expired codes. Expiry is enforced on lookup anyway;
// the sweep only bounds table growth, so it is off unless a schedule is configured.
type CodeSweeper struct {
	codes    repository.VerificationCodeRepository
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

func NewCodeSweeper(codes repository.VerificationCodeRepository, schedule string) *CodeSweeper {
	return &CodeSweeper{
		codes:    codes,
		schedule: schedule,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		now: time.Now,
	}
}

// SweepOnce deletes every code that expired before now.
func (s *CodeSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.codes.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired codes: %w", err)
	}
	if n > 0 {
		slog.Info("[CodeSweeper] expired codes deleted", "count", n)
	}
	return n, nil
}

// Start schedules the sweep; it is a no-op with an empty schedule.
func (s *CodeSweeper) Start() error {
	if s.schedule == "" {
		slog.Info("[CodeSweeper] no schedule configured, relying on lazy expiry")
		return nil
	}
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.SweepOnce(ctx); err != nil {
			slog.Error("[CodeSweeper] sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("[CodeSweeper] scheduled", "schedule", s.schedule)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *CodeSweeper) Stop() {
	<-s.cron.Stop().Done()
}
