// Package config provides configuration management for the buffering daemon.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	// ErrStreamURLRequired is returned when the stream URL is not provided.
	ErrStreamURLRequired = errors.New("stream URL is required")
	// ErrInvalidScheme is returned when the stream URL is not http or https.
	ErrInvalidScheme = errors.New("stream URL must be http or https")
	// ErrInvalidPort is returned when the port number is invalid.
	ErrInvalidPort = errors.New("invalid port number")
	// ErrInvalidRebuildHour is returned when the rebuild hour is out of range.
	ErrInvalidRebuildHour = errors.New("rebuild hour must be between 0 and 23")
	// ErrBufferMinutesPositive is returned when the buffer duration is not positive.
	ErrBufferMinutesPositive = errors.New("buffer minutes must be positive")
	// ErrBitratePositive is returned when the assumed bitrate is not positive.
	ErrBitratePositive = errors.New("bytes per second must be positive")
	// ErrChunkMillisPositive is returned when the chunk duration is not positive.
	ErrChunkMillisPositive = errors.New("chunk milliseconds must be positive")
	// ErrPlayerCommandRequired is returned when the player command is blank.
	ErrPlayerCommandRequired = errors.New("player command is required")
	// ErrInvalidLogLevel is returned when the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Config holds the application configuration.
type Config struct {
	StreamURL            string        `yaml:"stream_url"`
	Port                 int           `yaml:"port"`
	LogLevel             string        `yaml:"log_level"`
	LogFile              string        `yaml:"log_file"`
	PlayerCommand        string        `yaml:"player_command"`
	BufferMinutes        int           `yaml:"buffer_minutes"`
	InitialBufferSeconds int           `yaml:"initial_buffer_seconds"`
	RebuildHour          int           `yaml:"rebuild_hour"`
	BytesPerSecond       int           `yaml:"bytes_per_second"`
	ChunkMilliseconds    int           `yaml:"chunk_milliseconds"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	RefillTimeout        time.Duration `yaml:"refill_timeout"`
	HealthInterval       time.Duration `yaml:"health_interval"`
}

// Default returns the built-in defaults. The bitrate matches a 192 kbit/s
// stream.
func Default() *Config {
	return &Config{
		Port:                 8080,
		LogLevel:             "info",
		PlayerCommand:        "ffplay -nodisp -loglevel quiet -i -",
		BufferMinutes:        60,
		InitialBufferSeconds: 10,
		RebuildHour:          4,
		BytesPerSecond:       24000,
		ChunkMilliseconds:    500,
		ConnectTimeout:       10 * time.Second,
		ReadTimeout:          30 * time.Second,
		ProbeTimeout:         15 * time.Second,
		RefillTimeout:        10 * time.Minute,
		HealthInterval:       30 * time.Second,
	}
}

// New creates a configuration from, in increasing precedence: built-in
// defaults, an optional YAML config file, environment variables (a .env file
// is honored), and command-line flags.
func New() (*Config, error) {
	return NewFromArgs(os.Args[1:])
}

// NewFromArgs is New with an explicit argument list, for tests.
func NewFromArgs(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := os.Getenv("CLASSICFM_CONFIG")
	if p, ok := configPathFromArgs(args); ok {
		path = p
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	fs := flag.NewFlagSet("classicfm", flag.ContinueOnError)
	fs.String("config", path, "Path to YAML config file")
	fs.StringVar(&cfg.StreamURL, "stream", cfg.StreamURL, "URL of the audio stream (required)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path (empty for stderr)")
	fs.StringVar(&cfg.PlayerCommand, "player", cfg.PlayerCommand, "Player command reading audio from stdin")
	fs.IntVar(&cfg.BufferMinutes, "buffer-minutes", cfg.BufferMinutes, "Target buffer duration in minutes")
	fs.IntVar(&cfg.InitialBufferSeconds, "initial-buffer-seconds", cfg.InitialBufferSeconds, "Buffered seconds required before first playback")
	fs.IntVar(&cfg.RebuildHour, "rebuild-hour", cfg.RebuildHour, "Local hour of the daily buffer rebuild (0-23)")
	fs.IntVar(&cfg.BytesPerSecond, "bytes-per-second", cfg.BytesPerSecond, "Assumed stream bitrate in bytes per second")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPathFromArgs pre-scans the arguments for -config so the file can be
// loaded before the remaining flags bind their defaults.
func configPathFromArgs(args []string) (string, bool) {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(arg, "=")
		if name != "-config" && name != "--config" {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator input
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	envString(&c.StreamURL, "STREAM_URL")
	envInt(&c.Port, "PORT")
	envString(&c.LogLevel, "LOG_LEVEL")
	envString(&c.LogFile, "LOG_FILE")
	envString(&c.PlayerCommand, "PLAYER_COMMAND")
	envInt(&c.BufferMinutes, "BUFFER_MINUTES")
	envInt(&c.InitialBufferSeconds, "INITIAL_BUFFER_SECONDS")
	envInt(&c.RebuildHour, "REBUILD_HOUR")
	envInt(&c.BytesPerSecond, "BYTES_PER_SECOND")
	envInt(&c.ChunkMilliseconds, "CHUNK_MILLISECONDS")
	envDuration(&c.ConnectTimeout, "CONNECT_TIMEOUT")
	envDuration(&c.ReadTimeout, "READ_TIMEOUT")
	envDuration(&c.ProbeTimeout, "PROBE_TIMEOUT")
	envDuration(&c.RefillTimeout, "REFILL_TIMEOUT")
	envDuration(&c.HealthInterval, "HEALTH_INTERVAL")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StreamURL == "" {
		return ErrStreamURLRequired
	}
	u, err := url.Parse(c.StreamURL)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrInvalidScheme, u.Scheme)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.RebuildHour < 0 || c.RebuildHour > 23 {
		return fmt.Errorf("%w: %d", ErrInvalidRebuildHour, c.RebuildHour)
	}
	if c.BufferMinutes <= 0 {
		return ErrBufferMinutesPositive
	}
	if c.BytesPerSecond <= 0 {
		return ErrBitratePositive
	}
	if c.ChunkMilliseconds <= 0 {
		return ErrChunkMillisPositive
	}
	if strings.TrimSpace(c.PlayerCommand) == "" {
		return ErrPlayerCommandRequired
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: %s (must be debug, info, warn, or error)", ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

// TargetBytes returns the ring buffer capacity implied by the target duration
// and assumed bitrate.
func (c *Config) TargetBytes() int {
	return c.BufferMinutes * 60 * c.BytesPerSecond
}

// InitialBufferBytes returns the bytes required before the first playback tick.
func (c *Config) InitialBufferBytes() int {
	return c.InitialBufferSeconds * c.BytesPerSecond
}

// BytesPerChunk returns the bytes consumed per pacing tick.
func (c *Config) BytesPerChunk() int {
	return c.BytesPerSecond * c.ChunkMilliseconds / 1000
}

// ChunkDuration returns the wall-clock duration of one pacing tick.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkMilliseconds) * time.Millisecond
}
