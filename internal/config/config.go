package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nutrisync/internal/mfp"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for nutrisync.
type Config struct {
	Source   Source   `yaml:"source"`
	Sheet    Sheet    `yaml:"sheet"`
	Schedule Schedule `yaml:"schedule"`
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

// Source configures the nutrition report source.
type Source struct {
	Strategy      string        `yaml:"strategy"` // "diary" or "series"
	BaseURL       string        `yaml:"base_url"`
	SessionCookie string        `yaml:"session_cookie"`
	Username      string        `yaml:"username"`
	LookbackDays  int           `yaml:"lookback_days"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Sheet identifies the target spreadsheet and how to authenticate to it.
type Sheet struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Tab             string `yaml:"tab"`
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Schedule controls when the sync job runs.
type Schedule struct {
	Cron         string `yaml:"cron"`
	Timezone     string `yaml:"timezone"`
	RunAtStartup bool   `yaml:"run_at_startup"`
}

// Storage holds paths for the local summary archive and run history.
// Either may be empty to disable that sink.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds the status API listener configuration. Port 0 disables it.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Source: Source{
			Strategy: mfp.StrategyDiary,
			BaseURL:  "https://www.myfitnesspal.com",
			Timeout:  30 * time.Second,
		},
		Sheet: Sheet{
			Tab: "Calories",
		},
		Schedule: Schedule{
			Cron:     "0 0 * * *",
			Timezone: "UTC",
		},
		Server: Server{
			Host: "0.0.0.0",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of the
// defaults, and then applies environment variable overrides. A missing file
// is not an error so the job can be configured from the environment alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	return cfg, nil
}

// normalize canonicalizes values that may arrive from either YAML or env.
func (c *Config) normalize() {
	c.Source.Strategy = strings.ToLower(strings.TrimSpace(c.Source.Strategy))
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MFP_COOKIE"); v != "" {
		cfg.Source.SessionCookie = v
	}
	if v := os.Getenv("MFP_USERNAME"); v != "" {
		cfg.Source.Username = v
	}
	if v := os.Getenv("MFP_STRATEGY"); v != "" {
		cfg.Source.Strategy = v
	}
	if v := os.Getenv("MFP_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("MFP_LOOKBACK_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "MFP_LOOKBACK_DAYS", Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		cfg.Source.LookbackDays = n
	}

	if v := os.Getenv("GOOGLE_SHEET_ID"); v != "" {
		cfg.Sheet.SpreadsheetID = v
	}
	if v := os.Getenv("SHEET_TAB_NAME"); v != "" {
		cfg.Sheet.Tab = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.Sheet.CredentialsFile = v
	}
	// Inline JSON takes precedence over the file path.
	if v := os.Getenv("GCP_CREDENTIALS"); v != "" {
		cfg.Sheet.CredentialsJSON = v
	}

	if v := os.Getenv("RUN_AT_STARTUP"); v != "" {
		cfg.Schedule.RunAtStartup = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("CRON_SCHEDULE"); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv("TZ_NAME"); v != "" {
		cfg.Schedule.Timezone = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "PORT", Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		cfg.Server.Port = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ConfigError reports a required setting that is missing or invalid.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks that everything a sync run needs is present.
func (c *Config) Validate() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Sheet.SpreadsheetID) == "" {
		return &ConfigError{Field: "sheet.spreadsheet_id", Reason: "required (GOOGLE_SHEET_ID)"}
	}
	if strings.TrimSpace(c.Sheet.Tab) == "" {
		return &ConfigError{Field: "sheet.tab", Reason: "required"}
	}
	if c.Sheet.CredentialsJSON == "" && c.Sheet.CredentialsFile == "" {
		return &ConfigError{Field: "sheet.credentials", Reason: "set GCP_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS"}
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return &ConfigError{Field: "schedule.timezone", Reason: err.Error()}
	}

	return nil
}

// ValidateSource checks only the nutrition source settings.
func (c *Config) ValidateSource() error {
	if strings.TrimSpace(c.Source.SessionCookie) == "" {
		return &ConfigError{Field: "source.session_cookie", Reason: "required (MFP_COOKIE)"}
	}
	switch c.Source.Strategy {
	case mfp.StrategyDiary:
		if strings.TrimSpace(c.Source.Username) == "" {
			return &ConfigError{Field: "source.username", Reason: "required for the diary strategy (MFP_USERNAME)"}
		}
	case mfp.StrategySeries:
		if c.Source.LookbackDays <= 0 {
			return &ConfigError{Field: "source.lookback_days", Reason: "must be positive for the series strategy"}
		}
	default:
		return &ConfigError{Field: "source.strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Source.Strategy)}
	}
	if c.Source.LookbackDays < 0 {
		return &ConfigError{Field: "source.lookback_days", Reason: "must not be negative"}
	}
	return nil
}

// Location returns the configured schedule time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
