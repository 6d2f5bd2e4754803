package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWithStream(t *testing.T) {
	cfg, err := NewFromArgs([]string{"-stream", "http://radio.example.com/live"})
	if err != nil {
		t.Fatalf("NewFromArgs failed: %v", err)
	}

	if cfg.StreamURL != "http://radio.example.com/live" {
		t.Errorf("Unexpected stream URL %q", cfg.StreamURL)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.BufferMinutes != 60 {
		t.Errorf("Expected default 60 buffer minutes, got %d", cfg.BufferMinutes)
	}
}

func TestStreamRequired(t *testing.T) {
	_, err := NewFromArgs(nil)
	if !errors.Is(err, ErrStreamURLRequired) {
		t.Errorf("Expected ErrStreamURLRequired, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.StreamURL = "https://radio.example.com/live"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad scheme", func(c *Config) { c.StreamURL = "ftp://radio.example.com" }, ErrInvalidScheme},
		{"bad port", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"bad hour", func(c *Config) { c.RebuildHour = 24 }, ErrInvalidRebuildHour},
		{"zero minutes", func(c *Config) { c.BufferMinutes = 0 }, ErrBufferMinutesPositive},
		{"zero bitrate", func(c *Config) { c.BytesPerSecond = 0 }, ErrBitratePositive},
		{"zero chunk", func(c *Config) { c.ChunkMilliseconds = 0 }, ErrChunkMillisPositive},
		{"blank player", func(c *Config) { c.PlayerCommand = "  " }, ErrPlayerCommandRequired},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, ErrInvalidLogLevel},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}
}

func TestYAMLFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classicfm.yaml")
	data := []byte("stream_url: http://yaml.example.com/live\nport: 9000\nbuffer_minutes: 30\nrefill_timeout: 5m\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewFromArgs([]string{"-config", path, "-port", "9100"})
	if err != nil {
		t.Fatalf("NewFromArgs failed: %v", err)
	}

	if cfg.StreamURL != "http://yaml.example.com/live" {
		t.Errorf("YAML stream URL not applied, got %q", cfg.StreamURL)
	}
	if cfg.BufferMinutes != 30 {
		t.Errorf("YAML buffer minutes not applied, got %d", cfg.BufferMinutes)
	}
	if cfg.RefillTimeout != 5*time.Minute {
		t.Errorf("YAML refill timeout not applied, got %s", cfg.RefillTimeout)
	}
	// Flags beat the file.
	if cfg.Port != 9100 {
		t.Errorf("Flag should override YAML port, got %d", cfg.Port)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classicfm.yaml")
	if err := os.WriteFile(path, []byte("stream_url: http://yaml.example.com/live\nport: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "9200")
	t.Setenv("BUFFER_MINUTES", "15")

	cfg, err := NewFromArgs([]string{"-config", path})
	if err != nil {
		t.Fatalf("NewFromArgs failed: %v", err)
	}

	if cfg.Port != 9200 {
		t.Errorf("Environment should override YAML port, got %d", cfg.Port)
	}
	if cfg.BufferMinutes != 15 {
		t.Errorf("Environment buffer minutes not applied, got %d", cfg.BufferMinutes)
	}
}

func TestDerivedSizes(t *testing.T) {
	cfg := Default()
	cfg.BytesPerSecond = 24000
	cfg.BufferMinutes = 150
	cfg.InitialBufferSeconds = 10
	cfg.ChunkMilliseconds = 500

	if got := cfg.TargetBytes(); got != 216_000_000 {
		t.Errorf("Expected 216000000 target bytes, got %d", got)
	}
	if got := cfg.InitialBufferBytes(); got != 240_000 {
		t.Errorf("Expected 240000 initial bytes, got %d", got)
	}
	if got := cfg.BytesPerChunk(); got != 12_000 {
		t.Errorf("Expected 12000 bytes per chunk, got %d", got)
	}
	if got := cfg.ChunkDuration(); got != 500*time.Millisecond {
		t.Errorf("Expected 500ms chunk duration, got %s", got)
	}
}
