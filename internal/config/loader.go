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
)

// Config captures the service configuration. Values come from an optional
// YAML file, overridden by DAYPLAN_* environment variables.
type Config struct {
	ListenAddr       string        `yaml:"listen_addr"`
	SQLiteDSN        string        `yaml:"sqlite_dsn"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	Timezone         string        `yaml:"timezone"`
	HorizonDays      int           `yaml:"horizon_days"`
	MaterializerSpec string        `yaml:"materializer_spec"`
	LogLevel         string        `yaml:"log_level"`

	Admin AdminConfig `yaml:"admin"`
}

// AdminConfig holds the bootstrap administrator credentials. The account is
// created on startup when the user table does not yet contain it.
type AdminConfig struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"password"`
}

// Default returns the built in configuration values.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		SQLiteDSN:        "file:dayplan.db",
		SessionTTL:       24 * time.Hour,
		Timezone:         "UTC",
		HorizonDays:      366,
		MaterializerSpec: "@every 15m",
		LogLevel:         "info",
		Admin: AdminConfig{
			DisplayName: "Administrator",
		},
	}
}

// Load reads the YAML file at path (when non-empty), applies DAYPLAN_*
// environment overrides, and validates the result. A missing file at the
// default path is not an error; an explicitly configured path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	invalid := make([]string, 0, 2)

	if addr := strings.TrimSpace(os.Getenv("DAYPLAN_LISTEN_ADDR")); addr != "" {
		cfg.ListenAddr = addr
	}
	if dsn := strings.TrimSpace(os.Getenv("DAYPLAN_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if ttlValue := strings.TrimSpace(os.Getenv("DAYPLAN_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "DAYPLAN_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}
	if tz := strings.TrimSpace(os.Getenv("DAYPLAN_TIMEZONE")); tz != "" {
		cfg.Timezone = tz
	}
	if horizonValue := strings.TrimSpace(os.Getenv("DAYPLAN_HORIZON_DAYS")); horizonValue != "" {
		days, err := strconv.Atoi(horizonValue)
		if err != nil || days <= 0 {
			invalid = append(invalid, "DAYPLAN_HORIZON_DAYS")
		} else {
			cfg.HorizonDays = days
		}
	}
	if spec := strings.TrimSpace(os.Getenv("DAYPLAN_MATERIALIZER_SPEC")); spec != "" {
		cfg.MaterializerSpec = spec
	}
	if level := strings.TrimSpace(os.Getenv("DAYPLAN_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if email := strings.TrimSpace(os.Getenv("DAYPLAN_ADMIN_EMAIL")); email != "" {
		cfg.Admin.Email = email
	}
	if name := strings.TrimSpace(os.Getenv("DAYPLAN_ADMIN_DISPLAY_NAME")); name != "" {
		cfg.Admin.DisplayName = name
	}
	if password := os.Getenv("DAYPLAN_ADMIN_PASSWORD"); password != "" {
		cfg.Admin.Password = password
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	problems := make([]string, 0, 2)
	if strings.TrimSpace(c.ListenAddr) == "" {
		problems = append(problems, "listen_addr must not be empty")
	}
	if strings.TrimSpace(c.SQLiteDSN) == "" {
		problems = append(problems, "sqlite_dsn must not be empty")
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "session_ttl must be positive")
	}
	if c.HorizonDays <= 0 {
		problems = append(problems, "horizon_days must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("timezone %q is not recognized", c.Timezone))
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		problems = append(problems, "admin.password is required when admin.email is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves the configured timezone. Call after validation.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
