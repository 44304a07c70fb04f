// Package config loads the ohirun configuration from a YAML file and OHIRUN_* environment
// variables, applies defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding file values,
// e.g. OHIRUN_TELEGRAM_TOKEN for telegram.token.
const EnvPrefix = "OHIRUN"

// Config is the root configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Lunch     LunchConfig     `mapstructure:"lunch"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds the bot credentials and polling settings.
type TelegramConfig struct {
	Token       string        `mapstructure:"token"        validate:"required"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"min=1s,max=1m"`
}

// LunchConfig tunes the recommendation engine.
type LunchConfig struct {
	Lookback time.Duration `mapstructure:"lookback" validate:"min=1m"`
}

// DispatchConfig bounds command registration and handler execution.
type DispatchConfig struct {
	RegistrationTimeout     time.Duration `mapstructure:"registration_timeout"     validate:"min=1s"`
	RegistrationConcurrency int           `mapstructure:"registration_concurrency" validate:"min=1,max=64"`
	HandlerTimeout          time.Duration `mapstructure:"handler_timeout"          validate:"min=1s"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables a scheduled task on a cron schedule (seconds field allowed).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// GeminiConfig configures the optional one-line lunch commentary.
type GeminiConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	APIKey            string        `mapstructure:"api_key"            validate:"required_if=Enabled true"`
	ModelName         string        `mapstructure:"model_name"         validate:"required_if=Enabled true"`
	Temperature       float32       `mapstructure:"temperature"        validate:"min=0,max=2"`
	Timeout           time.Duration `mapstructure:"timeout"            validate:"min=1s,max=1m"`
	MaxRetries        int           `mapstructure:"max_retries"        validate:"min=0,max=5"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"        validate:"min=0,max=30s"`
	SystemInstruction string        `mapstructure:"system_instruction"`
}

// HTTPConfig configures the optional health endpoint.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing texts. Fields ending in Fmt are fmt format strings.
type MessagesConfig struct {
	Welcome             string `mapstructure:"welcome"                 validate:"required"`
	HelpHeader          string `mapstructure:"help_header"             validate:"required"`
	SuggestionFmt       string `mapstructure:"suggestion_fmt"          validate:"required"`
	NoOptionsMsg        string `mapstructure:"no_options_msg"          validate:"required"`
	NoOptionsByTypeMsg  string `mapstructure:"no_options_by_type_msg"  validate:"required"`
	NoOptionsByStoreMsg string `mapstructure:"no_options_by_store_msg" validate:"required"`
	UnknownCommandMsg   string `mapstructure:"unknown_command_msg"     validate:"required"`
	ErrorGeneralMsg     string `mapstructure:"error_general_msg"       validate:"required"`
	InvalidInputFmt     string `mapstructure:"invalid_input_fmt"       validate:"required"`
}

// LoadConfig reads path (a missing file is not an error), overlays OHIRUN_* environment
// variables on top of defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		slog.Info("Configuration file not found, using defaults and environment", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	slog.Debug("Configuration loaded",
		"path", path,
		"log_level", cfg.Logger.Level,
		"db_path", cfg.Database.Path,
		"lookback", cfg.Lunch.Lookback,
		"gemini_enabled", cfg.Gemini.Enabled,
		"http_enabled", cfg.HTTP.Enabled)

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
