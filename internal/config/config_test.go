package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  json: true
database:
  path: /tmp/lunch.db
telegram:
  token: "123:abc"
lunch:
  lookback: 12h
dispatch:
  registration_concurrency: 2
scheduler:
  tasks:
    command_sync:
      enabled: false
messages:
  welcome: "hello"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Logger.Level != "debug" || !cfg.Logger.JSON {
		t.Errorf("logger = %+v", cfg.Logger)
	}
	if cfg.Database.Path != "/tmp/lunch.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Lunch.Lookback != 12*time.Hour {
		t.Errorf("lunch.lookback = %v, want 12h", cfg.Lunch.Lookback)
	}
	if cfg.Dispatch.RegistrationConcurrency != 2 {
		t.Errorf("registration_concurrency = %d, want 2", cfg.Dispatch.RegistrationConcurrency)
	}
	if cfg.Dispatch.HandlerTimeout != DefaultHandlerTimeout {
		t.Errorf("handler_timeout = %v, want default", cfg.Dispatch.HandlerTimeout)
	}
	if cfg.Messages.Welcome != "hello" {
		t.Errorf("messages.welcome = %q", cfg.Messages.Welcome)
	}
	if cfg.Messages.ErrorGeneralMsg == "" {
		t.Error("messages.error_general_msg lost its default")
	}

	sync, ok := cfg.Scheduler.Tasks[TaskCommandSync]
	if !ok || sync.Enabled {
		t.Errorf("command_sync task = %+v (present %v), want disabled", sync, ok)
	}
	maint, ok := cfg.Scheduler.Tasks[TaskSQLMaintenance]
	if !ok || !maint.Enabled || maint.Schedule == "" {
		t.Errorf("sql_maintenance task = %+v (present %v), want default schedule", maint, ok)
	}
}

func TestLoadConfig_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("OHIRUN_TELEGRAM_TOKEN", "env-token")
	t.Setenv("OHIRUN_LUNCH_LOOKBACK", "36h")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("telegram.token = %q, want env-token", cfg.Telegram.Token)
	}
	if cfg.Lunch.Lookback != 36*time.Hour {
		t.Errorf("lunch.lookback = %v, want 36h", cfg.Lunch.Lookback)
	}
	if cfg.Database.Path != DefaultDBPath {
		t.Errorf("database.path = %q, want %q", cfg.Database.Path, DefaultDBPath)
	}
	if cfg.Lunch.Lookback == DefaultLookback {
		t.Error("environment did not override lookback")
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing token",
			body:    "logger:\n  level: info\n",
			wantErr: "Token",
		},
		{
			name:    "bad log level",
			body:    "telegram:\n  token: t\nlogger:\n  level: verbose\n",
			wantErr: "Level",
		},
		{
			name:    "gemini enabled without key",
			body:    "telegram:\n  token: t\ngemini:\n  enabled: true\n",
			wantErr: "APIKey",
		},
		{
			name:    "lookback too short",
			body:    "telegram:\n  token: t\nlunch:\n  lookback: 1s\n",
			wantErr: "Lookback",
		},
		{
			name:    "enabled task without schedule",
			body:    "telegram:\n  token: t\nscheduler:\n  tasks:\n    nightly:\n      enabled: true\n",
			wantErr: "Schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("LoadConfig() error = nil, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "telegram: [unterminated\n"))
	if err == nil {
		t.Fatal("LoadConfig() error = nil for malformed YAML")
	}
}
