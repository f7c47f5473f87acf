/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Defaults set in code (setDefaults)
  2. YAML file passed with -config (optional)
  3. Environment variables prefixed CUIDA_, dots become underscores:
     CUIDA_SERVER_PORT=9090, CUIDA_APPROVAL_FALLBACK_LEVEL=director

SEE ALSO:
  - config/logger.go: zap logger built from LoggerConfig
  - cmd/server/main.go: wiring
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CUIDA"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Validator ValidatorConfig `mapstructure:"validator"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json or console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// ApprovalConfig holds workflow engine settings.
type ApprovalConfig struct {
	EscalationSchedule    string `mapstructure:"escalation_schedule"` // cron spec
	DefaultEscalationDays int    `mapstructure:"default_escalation_days"`
	FallbackLevel         string `mapstructure:"fallback_level"`
	PoliciesFile          string `mapstructure:"policies_file"`
}

// ValidatorConfig mirrors timeoff.ValidatorConfig.
type ValidatorConfig struct {
	StaffingThreshold    float64 `mapstructure:"staffing_threshold"`
	PersonalDayCap       float64 `mapstructure:"personal_day_cap"`
	SeniorityBonusEvery  int     `mapstructure:"seniority_bonus_every"`
	SuggestionWindowDays int     `mapstructure:"suggestion_window_days"`
	MaxSuggestions       int     `mapstructure:"max_suggestions"`
}

// Timeoff converts to the validator's own config type.
func (v ValidatorConfig) Timeoff() timeoff.ValidatorConfig {
	return timeoff.ValidatorConfig{
		StaffingThreshold:    v.StaffingThreshold,
		PersonalDayCap:       v.PersonalDayCap,
		SeniorityBonusEvery:  v.SeniorityBonusEvery,
		SuggestionWindowDays: v.SuggestionWindowDays,
		MaxSuggestions:       v.MaxSuggestions,
	}
}

// Load reads configuration from an optional YAML file and the environment.
// An empty path uses defaults plus environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})

	// Database defaults
	v.SetDefault("database.path", "cuida.db")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_path", "stdout")

	// Approval defaults
	v.SetDefault("approval.escalation_schedule", "@hourly")
	v.SetDefault("approval.default_escalation_days", approval.DefaultEscalationDays)
	v.SetDefault("approval.fallback_level", approval.LevelHR.String())
	v.SetDefault("approval.policies_file", "")

	// Validator defaults
	d := timeoff.DefaultValidatorConfig()
	v.SetDefault("validator.staffing_threshold", d.StaffingThreshold)
	v.SetDefault("validator.personal_day_cap", d.PersonalDayCap)
	v.SetDefault("validator.seniority_bonus_every", d.SeniorityBonusEvery)
	v.SetDefault("validator.suggestion_window_days", d.SuggestionWindowDays)
	v.SetDefault("validator.max_suggestions", d.MaxSuggestions)
}

// bindEnvVars maps CUIDA_SECTION_KEY onto section.key.
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings replace the automatic name, so list it first.
	v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH", EnvPrefix+"_DB_PATH")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format))
	}
	if c.Approval.EscalationSchedule == "" {
		errs = append(errs, errors.New("approval.escalation_schedule is required"))
	}
	if c.Approval.DefaultEscalationDays <= 0 {
		errs = append(errs, errors.New("approval.default_escalation_days must be positive"))
	}
	if _, err := approval.ParseLevel(c.Approval.FallbackLevel); err != nil {
		errs = append(errs, fmt.Errorf("approval.fallback_level: %w", err))
	}
	if c.Validator.StaffingThreshold <= 0 || c.Validator.StaffingThreshold > 1 {
		errs = append(errs, errors.New("validator.staffing_threshold must be in (0, 1]"))
	}
	if c.Validator.PersonalDayCap <= 0 || c.Validator.PersonalDayCap > 1 {
		errs = append(errs, errors.New("validator.personal_day_cap must be in (0, 1]"))
	}
	if c.Validator.SeniorityBonusEvery <= 0 {
		errs = append(errs, errors.New("validator.seniority_bonus_every must be positive"))
	}
	if c.Validator.SuggestionWindowDays < 0 || c.Validator.MaxSuggestions < 0 {
		errs = append(errs, errors.New("validator suggestion limits must not be negative"))
	}

	return errors.Join(errs...)
}

// FallbackLevel returns the parsed fallback approval level.
func (c *Config) FallbackLevel() approval.Level {
	l, err := approval.ParseLevel(c.Approval.FallbackLevel)
	if err != nil {
		return approval.LevelHR
	}
	return l
}
