package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/shaharia-lab/bookwell/internal/async"
	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/build"
	"github.com/shaharia-lab/bookwell/internal/config"
	"github.com/shaharia-lab/bookwell/internal/directory"
	"github.com/shaharia-lab/bookwell/internal/logger"
	"github.com/shaharia-lab/bookwell/internal/mailer"
	"github.com/shaharia-lab/bookwell/internal/metrics"
	"github.com/shaharia-lab/bookwell/internal/notification"
	"github.com/shaharia-lab/bookwell/internal/service"
	"github.com/shaharia-lab/bookwell/internal/storage"
	"github.com/shaharia-lab/bookwell/internal/telemetry"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

// app holds the wired notification pipeline shared by serve and sweep.
type app struct {
	cfg       *config.AppConfig
	logger    *slog.Logger
	db        *sql.DB
	store     *storage.SQLiteStore
	bookings  *booking.Repository
	profiles  *directory.Directory
	userNotes *notification.Store
	proNotes  *notification.Store
	templates *templates.Registry
	runner    *async.Runner
	notifier  service.Notifier

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", cfg.DataDir, err)
	}

	sysLogger, logCloser, err := logger.NewSystemLogger(cfg.LogDir(), logger.Options{
		Level:      cfg.SlogLevel(),
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Stderr:     cfg.LogStderr,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	a := &app{cfg: cfg, logger: sysLogger}
	a.closers = append(a.closers, func(context.Context) error { return logCloser.Close() })

	if err := a.wire(ctx); err != nil {
		sysLogger.Error("startup failed", "error", err)
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	a.logger.Info("bookwell starting",
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("mail_provider", cfg.MailProvider),
		slog.String("version", build.Version),
		slog.String("commit", build.CommitSHA),
		slog.String("build_date", build.BuildDate),
	)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.OTelEndpoint,
		Insecure:       cfg.OTelInsecure,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: build.Version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	db, fresh, err := storage.NewSQLiteDB(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	if fresh {
		a.logger.Info("created database", "path", cfg.DatabasePath())
	}

	a.store = storage.NewSQLiteStore(db, a.logger)
	a.bookings = booking.NewRepository(a.store)
	a.profiles = directory.New(a.store)
	a.userNotes = notification.NewStore(a.store, storage.CollectionNotifications, a.logger)
	a.proNotes = notification.NewStore(a.store, storage.CollectionProfessionalNotifications, a.logger)

	a.templates, err = templates.New(templates.Options{
		Strict:  cfg.TemplatesStrict,
		AppName: cfg.AppName,
		BaseURL: cfg.PublicBaseURL,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	metrics.TemplateGaps.Set(float64(len(a.templates.Gaps())))

	provider, err := newMailProvider(cfg, a.logger)
	if err != nil {
		return err
	}
	dispatcher := mailer.NewDispatcher(provider, storage.NewSQLiteDeliveryLog(db), a.logger)
	dispatcher.SetTimeout(cfg.MailTimeout)
	a.logger.Info("mail dispatcher ready",
		slog.String("provider", dispatcher.ProviderName()),
		slog.Duration("timeout", cfg.MailTimeout),
	)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	a.runner = async.New(a.logger)
	a.notifier = service.NewNotifier(service.Deps{
		Profiles:          a.profiles,
		Bookings:          a.bookings,
		UserNotes:         a.userNotes,
		ProfessionalNotes: a.proNotes,
		Renderer:          a.templates,
		Sender:            dispatcher,
		Spawner:           a.runner,
		Logger:            a.logger,
	}, service.Options{
		BaseURL:  cfg.PublicBaseURL,
		FromName: cfg.MailFromName,
		Location: loc,
	})
	return nil
}

// Close drains background tasks and then releases resources in reverse
// order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs *multierror.Error
	if a.runner != nil {
		if err := a.runner.Close(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("draining tasks: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func newMailProvider(cfg *config.AppConfig, logger *slog.Logger) (mailer.Provider, error) {
	switch cfg.MailProvider {
	case config.MailProviderSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("SMTP_HOST is required for the smtp mail provider")
		}
		return mailer.NewSMTPProvider(mailer.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			FromAddress: cfg.MailFromAddress,
			Encryption:  cfg.SMTPEncryption,
		}), nil
	case config.MailProviderRelay:
		if cfg.RelayServiceID == "" || cfg.RelayTemplateID == "" || cfg.RelayUserID == "" {
			return nil, fmt.Errorf("MAIL_RELAY_SERVICE_ID, MAIL_RELAY_TEMPLATE_ID and MAIL_RELAY_USER_ID are required for the relay mail provider")
		}
		return mailer.NewRelayProvider(mailer.RelayConfig{
			Endpoint:    cfg.RelayEndpoint,
			ServiceID:   cfg.RelayServiceID,
			TemplateID:  cfg.RelayTemplateID,
			UserID:      cfg.RelayUserID,
			AccessToken: cfg.RelayAccessToken,
		}, nil), nil
	default:
		return mailer.NewLogProvider(logger), nil
	}
}
