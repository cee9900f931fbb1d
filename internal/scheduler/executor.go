package scheduler

import (
	"time"
)

// runSweep executes one reminder sweep. A panicking sweeper is logged and
// the schedule keeps running.
func (s *Scheduler) runSweep() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		s.logger.Warn("skipping reminder sweep, scheduler context done", "error", ctx.Err())
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reminder sweep panicked", "panic", r)
		}
	}()

	n := s.cfg.Sweeper.ScheduleAppointmentReminders(ctx)
	s.logger.Info("reminder sweep completed",
		"dispatched", n, "duration_ms", time.Since(start).Milliseconds())
}
