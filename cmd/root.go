// Package cmd implements the bookwell command line.
package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/bookwell/internal/config"
)

// NewRootCmd returns the root command with every subcommand attached.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "bookwell",
		Short: "Bookwell notification pipeline",
		Long: `Bookwell turns marketplace events (bookings, messages, verifications) into
localized emails and in-app notifications, and streams them to the UI.`,
		SilenceUsage: true,
	}

	root.AddCommand(NewServeCmd(cfg))
	root.AddCommand(NewSweepCmd(cfg))
	root.AddCommand(NewRenderCmd(cfg))
	root.AddCommand(NewVersionCmd())
	return root
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
