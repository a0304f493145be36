// Package config provides configuration types and defaults for wingman.
package config

import "time"

// Config holds all configuration for wingman.
type Config struct {
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	Manager     ManagerConfig     `yaml:"manager" mapstructure:"manager"`
	Journal     JournalConfig     `yaml:"journal" mapstructure:"journal"`
	Projections ProjectionsConfig `yaml:"projections" mapstructure:"projections"`
	LogRotation LogRotationConfig `yaml:"log_rotation" mapstructure:"log_rotation"`
	TUI         TUIConfig         `yaml:"tui" mapstructure:"tui"`
}

// PathsConfig holds file paths for the database, transcripts and the daemon.
type PathsConfig struct {
	Database string `yaml:"database" mapstructure:"database"`
	Log      string `yaml:"log" mapstructure:"log"`       // JSONL transcript of processed events
	States   string `yaml:"states" mapstructure:"states"` // Projection states mirror for overlays
	Socket   string `yaml:"socket" mapstructure:"socket"`
	PID      string `yaml:"pid" mapstructure:"pid"`
}

// ManagerConfig holds event manager settings.
type ManagerConfig struct {
	ProcessInterval      time.Duration `yaml:"process_interval" mapstructure:"process_interval"` // Fallback drain interval when no enqueue signal arrives
	TimerInterval        time.Duration `yaml:"timer_interval" mapstructure:"timer_interval"`
	HistoryLimit         int           `yaml:"history_limit" mapstructure:"history_limit"` // Events loaded on warm start
	ContinueConversation bool          `yaml:"continue_conversation" mapstructure:"continue_conversation"`
	MaxDepth             int           `yaml:"max_depth" mapstructure:"max_depth"` // Projected event recursion limit
}

// JournalConfig holds settings for the game journal watchers.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	StatusFile    string `yaml:"status_file" mapstructure:"status_file"` // Relative to Dir unless absolute
	HistoricLimit int    `yaml:"historic_limit" mapstructure:"historic_limit"`
}

// ProjectionsConfig tunes the built-in projections.
type ProjectionsConfig struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	JumpCooldown time.Duration `yaml:"jump_cooldown" mapstructure:"jump_cooldown"`
}

// LogRotationConfig holds settings for log file rotation.
// Used for the TUI debug log (lumberjack-based automatic rotation).
type LogRotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `yaml:"compress" mapstructure:"compress"`
}

// TUIConfig holds settings for the terminal monitor.
type TUIConfig struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`             // Forced on; otherwise enabled when stdout is a terminal
	RecentEvents int  `yaml:"recent_events" mapstructure:"recent_events"` // Events kept in the monitor's feed
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Database: ".wingman/wingman.db",
			Log:      ".wingman/events.jsonl",
			States:   ".wingman/states.json",
			Socket:   ".wingman/wingman.sock",
			PID:      ".wingman/wingman.pid",
		},
		Manager: ManagerConfig{
			ProcessInterval:      time.Second,
			TimerInterval:        10 * time.Second,
			HistoryLimit:         100,
			ContinueConversation: true,
			MaxDepth:             16,
		},
		Journal: JournalConfig{
			Enabled:       false,
			Dir:           "",
			StatusFile:    "Status.json",
			HistoricLimit: 1000,
		},
		Projections: ProjectionsConfig{
			IdleTimeout:  5 * time.Minute,
			JumpCooldown: 10 * time.Second,
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		TUI: TUIConfig{
			RecentEvents: 200,
		},
	}
}
