// Package config loads quiesce settings from defaults, a YAML file and the
// environment, in that order.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for quiesce
type Config struct {
	// Debounce settings
	InactivityTimeout Duration `yaml:"inactivity_timeout" env:"QUIESCE_INACTIVITY_TIMEOUT"`
	PollInterval      Duration `yaml:"poll_interval"`
	RefreshInterval   Duration `yaml:"refresh_interval"`

	// Signal sources
	WatchPaths       []string  `yaml:"watch_paths" env:"QUIESCE_WATCH_PATHS"`
	Ignore           []string  `yaml:"ignore"`
	Events           []string  `yaml:"events"`
	StatusCommand    string    `yaml:"status_command" env:"QUIESCE_STATUS_COMMAND"`
	StatusFile       string    `yaml:"status_file" env:"QUIESCE_STATUS_FILE"`
	ActivityPatterns []Pattern `yaml:"activity_patterns"`
	IgnorePatterns   []Pattern `yaml:"ignore_patterns"`

	// Control socket
	SocketPath string `yaml:"socket_path" env:"QUIESCE_SOCKET"`

	// Display
	StatusLine bool `yaml:"status_line" env:"QUIESCE_STATUS_LINE"`

	// Notification settings
	NtfyTopic  string          `yaml:"ntfy_topic" env:"QUIESCE_NTFY_TOPIC"`
	NtfyServer string          `yaml:"ntfy_server" env:"QUIESCE_NTFY_SERVER"`
	Quiet      bool            `yaml:"quiet" env:"QUIESCE_QUIET"`
	MinActive  Duration        `yaml:"min_active"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

// Pattern represents a configurable status-line pattern.
type Pattern struct {
	Name        string         `yaml:"name"`
	Regex       string         `yaml:"regex"`
	Description string         `yaml:"description"`
	Enabled     bool           `yaml:"enabled"`
	compiled    *regexp.Regexp `yaml:"-"`
}

// CompiledRegex returns the compiled regular expression
func (p *Pattern) CompiledRegex() *regexp.Regexp {
	return p.compiled
}

// SetCompiledRegex sets the compiled regular expression
func (p *Pattern) SetCompiledRegex(re *regexp.Regexp) {
	p.compiled = re
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Window      Duration `yaml:"window"`
	MaxMessages int      `yaml:"max_messages"`
}

// KnownEvents are the file-system operations that may count as activity.
var KnownEvents = []string{"create", "write", "remove", "rename", "chmod"}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		InactivityTimeout: Duration(2 * time.Second),
		PollInterval:      Duration(100 * time.Millisecond),
		RefreshInterval:   Duration(time.Second),
		Ignore:            []string{".git", ".obsidian", "*.swp", "*~", ".DS_Store"},
		Events:            []string{"create", "write", "remove", "rename"},
		ActivityPatterns: []Pattern{
			{
				Name:    "upload",
				Regex:   `(?i)\bupload(ing|ed)?\b`,
				Enabled: true,
			},
			{
				Name:    "download",
				Regex:   `(?i)\bdownload(ing|ed)?\b`,
				Enabled: true,
			},
			{
				Name:    "delete-local",
				Regex:   `(?i)\bdelet(e|ing|ed)[-_ ]?local\b`,
				Enabled: true,
			},
			{
				Name:    "syncing",
				Regex:   `(?i)\bsync(ing|hronizing)\b`,
				Enabled: true,
			},
		},
		IgnorePatterns: []Pattern{
			{
				Name:        "delete-remote",
				Regex:       `(?i)\bdelet(e|ing|ed)[-_ ]?remote\b`,
				Description: "remote deletions do not touch local files",
				Enabled:     true,
			},
		},
		SocketPath: defaultSocketPath(),
		NtfyServer: "https://ntfy.sh",
		MinActive:  Duration(0),
		RateLimit: RateLimitConfig{
			Window:      Duration(time.Minute),
			MaxMessages: 5,
		},
	}
}

// Load loads configuration from the default file location and environment
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom loads configuration from the given file (if it exists) and
// environment.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := CompilePatterns(cfg); err != nil {
		return nil, fmt.Errorf("failed to compile patterns: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Path returns the config file path
func Path() string {
	// Check for explicit config path
	if path := os.Getenv("QUIESCE_CONFIG"); path != "" {
		return path
	}

	// Check XDG config directory
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quiesce", "config.yaml")
	}

	// Fall back to home directory
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "quiesce", "config.yaml")
	}

	return ""
}

func defaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "quiesce.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("quiesce-%d.sock", os.Getuid()))
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (env var or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if timeout := os.Getenv("QUIESCE_INACTIVITY_TIMEOUT"); timeout != "" {
		d, err := ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid QUIESCE_INACTIVITY_TIMEOUT: %w", err)
		}
		cfg.InactivityTimeout = Duration(d)
	}

	if paths := os.Getenv("QUIESCE_WATCH_PATHS"); paths != "" {
		cfg.WatchPaths = splitList(paths)
	}

	if cmd := os.Getenv("QUIESCE_STATUS_COMMAND"); cmd != "" {
		cfg.StatusCommand = cmd
	}

	if file := os.Getenv("QUIESCE_STATUS_FILE"); file != "" {
		cfg.StatusFile = file
	}

	if sock := os.Getenv("QUIESCE_SOCKET"); sock != "" {
		cfg.SocketPath = sock
	}

	if topic := os.Getenv("QUIESCE_NTFY_TOPIC"); topic != "" {
		cfg.NtfyTopic = topic
	}

	if server := os.Getenv("QUIESCE_NTFY_SERVER"); server != "" {
		cfg.NtfyServer = server
	}

	if quiet := os.Getenv("QUIESCE_QUIET"); quiet != "" {
		v, err := parseBool(quiet)
		if err != nil {
			return fmt.Errorf("invalid QUIESCE_QUIET value: %w", err)
		}
		cfg.Quiet = v
	}

	if statusLine := os.Getenv("QUIESCE_STATUS_LINE"); statusLine != "" {
		v, err := parseBool(statusLine)
		if err != nil {
			return fmt.Errorf("invalid QUIESCE_STATUS_LINE value: %w", err)
		}
		cfg.StatusLine = v
	}

	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%q (use true/false)", s)
	}
}

// splitList splits a comma-separated list, dropping empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CompilePatterns compiles every enabled activity and ignore pattern.
func CompilePatterns(cfg *Config) error {
	for _, patterns := range [][]Pattern{cfg.ActivityPatterns, cfg.IgnorePatterns} {
		for i := range patterns {
			pattern := &patterns[i]
			if pattern.Enabled && pattern.Regex != "" {
				re, err := regexp.Compile(pattern.Regex)
				if err != nil {
					return fmt.Errorf("failed to compile pattern %q: %w", pattern.Name, err)
				}
				pattern.SetCompiledRegex(re)
			}
		}
	}
	return nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.InactivityTimeout < 0 {
		return fmt.Errorf("inactivity_timeout must be non-negative")
	}

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}

	if cfg.MinActive < 0 {
		return fmt.Errorf("min_active must be non-negative")
	}

	for _, ev := range cfg.Events {
		if !isKnownEvent(ev) {
			return fmt.Errorf("unknown event %q (known: %s)", ev, strings.Join(KnownEvents, ", "))
		}
	}

	if cfg.SocketPath == "" {
		return fmt.Errorf("socket_path must not be empty")
	}

	if cfg.RateLimit.MaxMessages < 0 {
		return fmt.Errorf("rate_limit.max_messages must be non-negative")
	}

	if cfg.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit.window must be non-negative")
	}

	return nil
}

func isKnownEvent(name string) bool {
	for _, known := range KnownEvents {
		if strings.EqualFold(name, known) {
			return true
		}
	}
	return false
}

// Duration is a time.Duration that also accepts a bare integer number of
// milliseconds, e.g. `inactivity_timeout: 2000`.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MaxMillis is the largest millisecond count a time.Duration can hold.
const MaxMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseDuration parses a Go duration ("2s", "1m30s") or a bare integer
// number of milliseconds ("2000").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > MaxMillis || ms < -MaxMillis {
			return 0, fmt.Errorf("invalid duration %q: exceeds %dms", s, MaxMillis)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
