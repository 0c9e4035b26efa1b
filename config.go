package main

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the platform.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"local"`
	AppAddr string `envconfig:"APP_ADDR" default:":5000"`

	DataDir  string `envconfig:"DATA_DIR" default:"./data"`
	TasksDir string `envconfig:"TASKS_DIR" default:"./tasks"`

	ContestName string `envconfig:"CONTEST_NAME" default:"IR Tasks"`
	AdminEmail  string `envconfig:"ADMIN_EMAIL" required:"true"`

	CookieMaxAge   time.Duration `envconfig:"COOKIE_MAX_AGE" default:"8760h"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"2097152"`

	// Optional audit sink. Audit events fall back to a local file when unset.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.AdminEmail == "" {
		return nil, errors.New("admin email must be provided")
	}
	return &cfg, nil
}

// UsersCsvPath is the account ledger location under the data directory.
func (c *Config) UsersCsvPath() string {
	return filepath.Join(c.DataDir, "users.csv")
}
