package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/talx-hub/credit-ledger/internal/model"
	"github.com/talx-hub/credit-ledger/internal/service/allocation"
	"github.com/talx-hub/credit-ledger/internal/utils/logger"
	"github.com/talx-hub/credit-ledger/internal/utils/semaphore"
)

type AllocationEngine interface {
	RunDue(ctx context.Context, now time.Time) (*allocation.RunReport, error)
}

// Scheduler triggers allocation runs on a fixed tick. The tick must be finer
// than the finest rule frequency; over-invocation is harmless because runs
// are idempotent. An external cron hitting the run endpoint alongside this
// loop is equally harmless.
type Scheduler struct {
	engine   AllocationEngine
	interval time.Duration

	// capacity 1: a tick that finds a run still in flight is skipped,
	// not queued.
	running *semaphore.Semaphore
}

func New(engine AllocationEngine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		running:  semaphore.New(1),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With("service", "scheduler")
	log.LogAttrs(ctx,
		slog.LevelInfo,
		"allocation scheduler running",
		slog.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.LogAttrs(ctx, slog.LevelInfo, "stop signal received, exiting...")
			return
		case <-ticker.C:
			s.tick(ctx, log)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, log *slog.Logger) {
	if err := s.running.AcquireWithTimeout(model.DefaultTimeout); err != nil {
		log.LogAttrs(ctx,
			slog.LevelWarn,
			"previous allocation run still in flight, skipping tick",
		)
		return
	}

	go func() {
		defer s.running.Release()

		report, err := s.engine.RunDue(ctx, time.Now().UTC())
		if err != nil {
			log.LogAttrs(ctx,
				slog.LevelError,
				"allocation run failed",
				slog.Any(model.KeyLoggerError, err),
			)
			return
		}

		log.LogAttrs(ctx,
			slog.LevelInfo,
			"scheduled allocation run complete",
			slog.Int("granted", len(report.Granted)),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", len(report.Failures)),
		)
	}()
}
