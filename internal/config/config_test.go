package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestDefaultManagerConfig(t *testing.T) {
	cfg := Default()

	if cfg.Manager.TimerInterval != 10*time.Second {
		t.Errorf("Manager.TimerInterval = %v, want %v", cfg.Manager.TimerInterval, 10*time.Second)
	}
	if cfg.Manager.ProcessInterval != time.Second {
		t.Errorf("Manager.ProcessInterval = %v, want %v", cfg.Manager.ProcessInterval, time.Second)
	}
	if cfg.Manager.HistoryLimit != 100 {
		t.Errorf("Manager.HistoryLimit = %d, want 100", cfg.Manager.HistoryLimit)
	}
	if !cfg.Manager.ContinueConversation {
		t.Error("Manager.ContinueConversation = false, want true")
	}
	if cfg.Manager.MaxDepth <= 0 {
		t.Errorf("Manager.MaxDepth = %d, want positive", cfg.Manager.MaxDepth)
	}
}

func TestDefaultProjectionsConfig(t *testing.T) {
	cfg := Default()

	if cfg.Projections.IdleTimeout != 5*time.Minute {
		t.Errorf("Projections.IdleTimeout = %v, want %v", cfg.Projections.IdleTimeout, 5*time.Minute)
	}
	if cfg.Projections.JumpCooldown != 10*time.Second {
		t.Errorf("Projections.JumpCooldown = %v, want %v", cfg.Projections.JumpCooldown, 10*time.Second)
	}
}

func TestDefaultPathsConfig(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Database", cfg.Paths.Database, ".wingman/wingman.db"},
		{"Log", cfg.Paths.Log, ".wingman/events.jsonl"},
		{"States", cfg.Paths.States, ".wingman/states.json"},
		{"Socket", cfg.Paths.Socket, ".wingman/wingman.sock"},
		{"PID", cfg.Paths.PID, ".wingman/wingman.pid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Paths.%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero timer interval", func(c *Config) { c.Manager.TimerInterval = 0 }, true},
		{"negative process interval", func(c *Config) { c.Manager.ProcessInterval = -time.Second }, true},
		{"zero max depth", func(c *Config) { c.Manager.MaxDepth = 0 }, true},
		{"journal without dir", func(c *Config) { c.Journal.Enabled = true }, true},
		{"journal with dir", func(c *Config) {
			c.Journal.Enabled = true
			c.Journal.Dir = "/tmp/journal"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusPath(t *testing.T) {
	tests := []struct {
		name string
		cfg  JournalConfig
		want string
	}{
		{"relative", JournalConfig{Dir: "/games/ed", StatusFile: "Status.json"}, "/games/ed/Status.json"},
		{"absolute", JournalConfig{Dir: "/games/ed", StatusFile: "/other/Status.json"}, "/other/Status.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.StatusPath(); got != tt.want {
				t.Errorf("StatusPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
