// Package scheduler triggers the appointment reminder sweep in-process on a
// cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Sweeper runs one reminder sweep and reports how many reminders it started.
type Sweeper interface {
	ScheduleAppointmentReminders(ctx context.Context) int
}

// Config holds the scheduler configuration.
type Config struct {
	Sweeper Sweeper
	// Expression is a five-field cron expression, e.g. "0 9 * * *".
	Expression string
	// Location is the timezone the expression is evaluated in. Defaults to UTC.
	Location *time.Location
	Logger   *slog.Logger
}

// Scheduler runs the reminder sweep using gocron.
type Scheduler struct {
	cron   gocron.Scheduler
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	jobID uuid.UUID
	ctx   context.Context
}

// New creates a Scheduler. The sweep job is registered by Start.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Sweeper == nil {
		return nil, errors.New("scheduler: sweeper is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(cfg.Location))
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}

	return &Scheduler{
		cron:   cron,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
		ctx:    context.Background(),
	}, nil
}

// Start registers the sweep job and starts the scheduler. Sweeps run with
// ctx; overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx

	job, err := s.cron.NewJob(
		gocron.CronJob(s.cfg.Expression, false),
		gocron.NewTask(s.runSweep),
		gocron.WithName("appointment-reminders"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling reminder sweep %q: %w", s.cfg.Expression, err)
	}
	s.jobID = job.ID()

	s.cron.Start()
	s.logger.Info("reminder scheduler started",
		"expression", s.cfg.Expression, "timezone", s.cfg.Location.String())
	return nil
}

// Stop shuts down the gocron scheduler, waiting for a running sweep.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// NextRun returns the time of the next scheduled sweep.
func (s *Scheduler) NextRun() (time.Time, error) {
	s.mu.Lock()
	id := s.jobID
	s.mu.Unlock()

	for _, j := range s.cron.Jobs() {
		if j.ID() == id {
			return j.NextRun()
		}
	}
	return time.Time{}, errors.New("scheduler: reminder sweep is not scheduled")
}
