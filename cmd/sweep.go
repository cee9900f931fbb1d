package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/bookwell/internal/config"
)

// NewSweepCmd returns the "sweep" subcommand that runs one appointment
// reminder sweep and exits once every reminder has been handled.
func NewSweepCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Send tomorrow's appointment reminders once",
		Long: `Run a single appointment reminder sweep for the bookings confirmed for
tomorrow (in REMINDER_TIMEZONE) and wait for the reminders to be delivered.
Use this from an external scheduler when the in-process one is disabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}

			n := a.notifier.ScheduleAppointmentReminders(ctx)

			drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
			defer drainCancel()
			if err := a.Close(drainCtx); err != nil {
				return fmt.Errorf("finishing sweep: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Dispatched %d appointment reminder(s).", n)))
			return nil
		},
	}
}
