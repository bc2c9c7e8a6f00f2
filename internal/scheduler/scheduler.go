// Package scheduler fires the daily aggregation cycle at the configured
// wall-clock time in the configured time zone.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/reportbot/reportbot/internal/core"
	"github.com/reportbot/reportbot/pkg/models"
)

// Scheduler triggers the aggregation engine once per day. The trigger time is
// re-read from the config snapshot at every re-arm, so hot reloads take
// effect at the next boundary without a restart.
type Scheduler struct {
	config core.ConfigStore
	engine core.AggregationEngine
	events core.EventLogger
	now    func() time.Time
}

// New creates a Scheduler. events may be nil.
func New(config core.ConfigStore, engine core.AggregationEngine, events core.EventLogger) *Scheduler {
	return &Scheduler{
		config: config,
		engine: engine,
		events: events,
		now:    time.Now,
	}
}

// Run blocks, firing a cycle at each daily boundary until ctx is cancelled.
// An in-flight cycle is allowed to finish after cancellation; a cycle that
// fails (or is rejected because a manual cycle is running) is logged and the
// scheduler re-arms for the next day.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		cfg := s.config.Snapshot()
		wait := time.Until(nextBoundary(s.now(), cfg))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		record, err := s.engine.RunCycle(ctx)
		switch {
		case errors.Is(err, core.ErrCycleRunning):
			s.logEvent("scheduler.skipped", map[string]any{"reason": "cycle already running"})
		case err != nil:
			s.logEvent("scheduler.cycle_failed", map[string]any{"error": err.Error()})
		default:
			s.logEvent("scheduler.cycle_fired", map[string]any{"record_id": record.ID})
		}
	}
}

func (s *Scheduler) logEvent(eventType string, data map[string]any) {
	if s.events != nil {
		s.events.LogEvent(eventType, data)
	}
}

// nextBoundary computes the next occurrence of the configured report time in
// the configured zone, strictly after now.
func nextBoundary(now time.Time, cfg *models.BotConfig) time.Time {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), cfg.ReportHour, cfg.ReportMinute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
