package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Mail providers.
const (
	MailProviderSMTP  = "smtp"
	MailProviderRelay = "relay"
	MailProviderLog   = "log"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP server port. Defaults to 8990.
	Port int `envconfig:"PORT" default:"8990"`

	// DataDir is the root data directory. Defaults to ~/.bookwell.
	DataDir string `envconfig:"BOOKWELL_DATA_DIR"`

	// DBPath overrides the SQLite database location (<DataDir>/bookwell.db).
	DBPath string `envconfig:"BOOKWELL_DB_PATH"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogStderr     bool   `envconfig:"LOG_STDERR" default:"false"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`

	// PublicBaseURL is where the web app is served; email links point here.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:5173"`

	// AppName is the brand shown in emails and in-app texts.
	AppName string `envconfig:"APP_NAME" default:"Bookwell"`

	// MailProvider selects the delivery backend: smtp, relay or log.
	MailProvider    string        `envconfig:"MAIL_PROVIDER" default:"log"`
	MailFromName    string        `envconfig:"MAIL_FROM_NAME"`
	MailFromAddress string        `envconfig:"MAIL_FROM_ADDRESS" default:"no-reply@bookwell.local"`
	MailTimeout     time.Duration `envconfig:"MAIL_TIMEOUT" default:"30s"`

	SMTPHost       string `envconfig:"SMTP_HOST"`
	SMTPPort       int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername   string `envconfig:"SMTP_USERNAME"`
	SMTPPassword   string `envconfig:"SMTP_PASSWORD"`
	SMTPEncryption string `envconfig:"SMTP_ENCRYPTION" default:"starttls"`

	RelayEndpoint    string `envconfig:"MAIL_RELAY_ENDPOINT"`
	RelayServiceID   string `envconfig:"MAIL_RELAY_SERVICE_ID"`
	RelayTemplateID  string `envconfig:"MAIL_RELAY_TEMPLATE_ID"`
	RelayUserID      string `envconfig:"MAIL_RELAY_USER_ID"`
	RelayAccessToken string `envconfig:"MAIL_RELAY_ACCESS_TOKEN"`

	// TemplatesStrict fails startup on any missing catalogue entry.
	TemplatesStrict bool `envconfig:"TEMPLATES_STRICT" default:"false"`

	// ReminderSchedulerEnabled runs the reminder sweep in-process on ReminderCron.
	ReminderSchedulerEnabled bool   `envconfig:"REMINDER_SCHEDULER_ENABLED" default:"true"`
	ReminderCron             string `envconfig:"REMINDER_CRON" default:"0 9 * * *"`
	// ReminderTimezone decides which day is "tomorrow" for the sweep.
	ReminderTimezone string `envconfig:"REMINDER_TIMEZONE" default:"UTC"`

	// CORSAllowedOrigins is a comma-separated origin list for the API.
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`

	OTelEndpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"false"`
	OTelServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"bookwell"`
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.bookwell if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".bookwell")
	}
	if c.AppName == "" {
		c.AppName = "Bookwell"
	}
	if c.MailFromName == "" {
		c.MailFromName = c.AppName
	}
	c.MailProvider = strings.ToLower(strings.TrimSpace(c.MailProvider))
	if c.MailProvider == "" {
		c.MailProvider = MailProviderLog
	}
	switch c.MailProvider {
	case MailProviderSMTP, MailProviderRelay, MailProviderLog:
	default:
		return nil, fmt.Errorf("loading config: unsupported MAIL_PROVIDER %q", c.MailProvider)
	}
	if _, err := c.Location(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &c, nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDir returns the path to the log directory (<DataDir>/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DatabasePath returns DBPath, or <DataDir>/bookwell.db when unset.
func (c *AppConfig) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "bookwell.db")
}

// Location returns the reminder timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	if c.ReminderTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ReminderTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_TIMEZONE %q: %w", c.ReminderTimezone, err)
	}
	return loc, nil
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c *AppConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
