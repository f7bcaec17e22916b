// Package config loads and watches the daemon configuration. Files may be
// YAML or JSON; both go through the same strict decoder so unknown fields
// are rejected early instead of being silently ignored.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Alarms   AlarmsConfig   `json:"alarms,omitempty"`
	Pomodoro PomodoroConfig `json:"pomodoro,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
	Server   ServerConfig   `json:"server,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string (e.g. "500ms").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// AlarmsConfig tunes the wake-up scheduler.
type AlarmsConfig struct {
	// DefaultLeadMinutes applies to subjects without a per-subject lead.
	DefaultLeadMinutes int `json:"default_lead_minutes,omitempty"`

	// TaskLead is a Go duration string; how far ahead of a due date the
	// task alarm fires. Default "1h".
	TaskLead string `json:"task_lead,omitempty"`

	// ReconcileSpec is a cron spec for the periodic re-registration pass.
	ReconcileSpec string `json:"reconcile_spec,omitempty"`
}

// PomodoroConfig seeds the timer durations. Zero values leave the
// persisted (or default 25/5/15) durations untouched.
type PomodoroConfig struct {
	FocusMinutes      int `json:"focus_minutes,omitempty"`
	ShortBreakMinutes int `json:"short_break_minutes,omitempty"`
	LongBreakMinutes  int `json:"long_break_minutes,omitempty"`
}

func (p PomodoroConfig) IsZero() bool {
	return p.FocusMinutes == 0 && p.ShortBreakMinutes == 0 && p.LongBreakMinutes == 0
}

type NotifyConfig struct {
	RatePerSec int            `json:"rate_per_sec,omitempty"`
	Telegram   TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

// ServerConfig controls the local REST/WebSocket surface the UI and
// widgets talk to. Prefer binding to localhost.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8590"
}

// Default returns the built-in configuration used when fields are omitted.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "INFO", Console: true},
		Storage: StorageConfig{Path: "./studymate.db"},
		Alarms:  AlarmsConfig{DefaultLeadMinutes: 15, TaskLead: "1h", ReconcileSpec: "30 0 * * *"},
		Server:  ServerConfig{Enabled: true, Addr: "127.0.0.1:8590"},
	}
}

// applyDefaults fills omitted fields in-place after a successful parse.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Alarms.DefaultLeadMinutes == 0 {
		c.Alarms.DefaultLeadMinutes = def.Alarms.DefaultLeadMinutes
	}
	if c.Alarms.TaskLead == "" {
		c.Alarms.TaskLead = def.Alarms.TaskLead
	}
	if c.Alarms.ReconcileSpec == "" {
		c.Alarms.ReconcileSpec = def.Alarms.ReconcileSpec
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
}

// ParseDurationField parses a Go duration string, mapping "" to def and
// attributing errors to the named field.
func ParseDurationField(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	return d, nil
}
