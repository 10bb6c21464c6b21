package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables. Credentials are not required here;
// the run command validates the one matching the selected source so that
// status and reset keep working on a machine without keys.
type Config struct {
	Source string `envconfig:"SOURCE" default:"drive"`

	DriveAPIKey  string `envconfig:"GOOGLE_API_KEY"`
	DriveBaseURL string `envconfig:"DRIVE_BASE_URL"`

	PutioToken string `envconfig:"PUTIO_TOKEN"`

	DataDir      string `envconfig:"DATA_DIR" default:"data"`
	OutputDir    string `envconfig:"OUTPUT_DIR" default:"files"`
	IndexFile    string `envconfig:"INDEX_FILE"`
	ProgressFile string `envconfig:"PROGRESS_FILE"`
	JournalPath  string `envconfig:"JOURNAL_PATH"`

	Workers       int           `envconfig:"WORKERS" default:"1"`
	FetchTimeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"120s"`
	ListTimeout   time.Duration `envconfig:"LIST_TIMEOUT" default:"30s"`
	SkipFailed    bool          `envconfig:"SKIP_FAILED" default:"false"`
	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" default:"10s"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled bool `split_words:"true" default:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
// Paths left empty default to well-known files under DataDir.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.IndexFile == "" {
		cfg.IndexFile = filepath.Join(cfg.DataDir, "folder_index.json")
	}
	if cfg.ProgressFile == "" {
		cfg.ProgressFile = filepath.Join(cfg.DataDir, "download_progress.json")
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(cfg.DataDir, "journal.db")
	}

	return &cfg, nil
}

// ValidateForRun checks the preconditions only a download run needs.
func (c *Config) ValidateForRun() error {
	switch c.Source {
	case "drive":
		if c.DriveAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is not set; export it or add it to .env")
		}
	case "putio":
		if c.PutioToken == "" {
			return fmt.Errorf("PUTIO_TOKEN is not set; export it or add it to .env")
		}
	default:
		return fmt.Errorf("unknown source %q (want drive or putio)", c.Source)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
