package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/bookwell/internal/api"
	"github.com/shaharia-lab/bookwell/internal/build"
	"github.com/shaharia-lab/bookwell/internal/config"
	"github.com/shaharia-lab/bookwell/internal/realtime"
	"github.com/shaharia-lab/bookwell/internal/scheduler"
	"github.com/shaharia-lab/bookwell/internal/server"
)

const drainTimeout = 30 * time.Second

// NewServeCmd returns the "serve" subcommand that starts the HTTP server and
// the reminder scheduler.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	var port int
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notification API server",
		Long: `Start the Bookwell HTTP server: domain event intake, notification inboxes,
live streams and template previews under /api. The appointment reminder
sweep runs in-process unless disabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// CLI flags override env config.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if noScheduler {
				cfg.ReminderSchedulerEnabled = false
			}

			serverURL := fmt.Sprintf("http://localhost:%d", cfg.Port)
			logFile := filepath.Join(cfg.LogDir(), "system.log")
			printBanner(cmd.OutOrStdout(), build.Version, serverURL, logFile)

			if err := runServe(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "An error occurred. Please check the logs at: %s\n", logFile)
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", cfg.Port, "HTTP server port (overrides PORT env var)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the reminder sweep in-process")

	return cmd
}

func runServe(cfg *config.AppConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := a.Close(drainCtx); err != nil {
			a.logger.Error("shutdown incomplete", "error", err)
		}
	}()

	bridge := realtime.NewBridge(a.store, a.proNotes, a.profiles, a.templates, a.runner, a.logger)

	if cfg.ReminderSchedulerEnabled {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		sched, err := scheduler.New(scheduler.Config{
			Sweeper:    a.notifier,
			Expression: cfg.ReminderCron,
			Location:   loc,
			Logger:     a.logger,
		})
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				a.logger.Warn("stopping scheduler", "error", err)
			}
		}()
		if next, err := sched.NextRun(); err == nil {
			a.logger.Info("next reminder sweep", slog.Time("at", next))
		}
	}

	apiSrv := api.New(api.Deps{
		Notifier:          a.notifier,
		Bookings:          a.bookings,
		UserInbox:         a.userNotes,
		ProfessionalInbox: a.proNotes,
		Watcher:           bridge,
		Previewer:         a.templates,
		Spawner:           a.runner,
		Logger:            a.logger,
	})
	srv := server.New(apiSrv, server.Options{
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         a.logger,
	})

	a.logger.Info("server ready", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))
	return srv.Run(ctx)
}
