package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/bookwell/internal/api"
	"github.com/shaharia-lab/bookwell/internal/config"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Width(10)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#D97706"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#059669"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)
)

// NewRenderCmd returns the "render" subcommand that previews an email
// template with sample data.
func NewRenderCmd(cfg *config.AppConfig) *cobra.Command {
	var lang, status string
	var html bool

	cmd := &cobra.Command{
		Use:   "render [template]",
		Short: "Preview an email template with sample data",
		Long: `Render an email template in a language with built-in sample data. Without a
template name, list the templates and any catalogue entries that fall back
to English.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := templates.New(templates.Options{
				Strict:  cfg.TemplatesStrict,
				AppName: cfg.AppName,
				BaseURL: cfg.PublicBaseURL,
				Logger:  discardLogger(),
			})
			if err != nil {
				return fmt.Errorf("loading templates: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				printCatalogue(out, reg)
				return nil
			}

			data := api.PreviewData()
			data.Status = templates.ParseVerificationStatus(status)
			msg, err := reg.Render(templates.Name(args[0]), lang, data)
			if err != nil {
				return err
			}
			if html {
				fmt.Fprintln(out, msg.HTML)
				return nil
			}
			printMessage(out, msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", templates.DefaultLanguage, "Language code, e.g. es or pt-BR")
	cmd.Flags().StringVar(&status, "status", "", "Verification status for professional_verification")
	cmd.Flags().BoolVar(&html, "html", false, "Print the HTML body instead of the text alternative")
	return cmd
}

func printMessage(w io.Writer, msg templates.Message) {
	fmt.Fprintln(w, labelStyle.Render("Subject")+titleStyle.Render(msg.Subject))
	fmt.Fprintln(w, labelStyle.Render("Language")+msg.Language)
	fmt.Fprintln(w, boxStyle.Render(msg.Text))
}

func printCatalogue(w io.Writer, reg *templates.Registry) {
	fmt.Fprintln(w, titleStyle.Render("Templates"))
	for _, n := range templates.Names {
		fmt.Fprintln(w, "  "+string(n))
	}
	gaps := reg.Gaps()
	if len(gaps) == 0 {
		fmt.Fprintln(w, successStyle.Render("All catalogues are complete."))
		return
	}
	fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d catalogue gap(s):", len(gaps))))
	for _, g := range gaps {
		fmt.Fprintln(w, "  "+g.String())
	}
}

// printBanner writes the startup banner. It is the only output visible in
// the terminal during normal operation; structured logs go to the log file.
func printBanner(w io.Writer, version, serverURL, logFile string) {
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Bookwell "+version),
		labelStyle.Render("API")+serverURL+"/api",
		labelStyle.Render("Metrics")+serverURL+"/metrics",
		labelStyle.Render("Logs")+logFile,
	)
	fmt.Fprintln(w, boxStyle.Render(body))
}
