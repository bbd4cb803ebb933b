// Package config provides configuration loading and defaults for the player.
//
// Configuration is a TOML file in the data directory. It carries logging
// and signal handling settings alongside the player state that is saved
// on shutdown, periodically, and by the crash reporter before exit.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/cadence/internal/atomicfile"
	"tools.zach/dev/cadence/internal/logger"
	"tools.zach/dev/cadence/internal/signals"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Signals holds signal delivery settings.
	Signals SignalsConfig `toml:"signals"`
	// Player holds the persisted playback state.
	Player PlayerConfig `toml:"player"`
	// Behavior holds background task settings.
	Behavior BehaviorConfig `toml:"behavior"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Console mirrors log lines to stderr.
	Console bool `toml:"console"`
}

// SignalsConfig holds signal delivery settings.
type SignalsConfig struct {
	// Mode is "auto", "wait" or "poll". Auto probes the threading library.
	Mode string `toml:"mode"`
	// PollIntervalMs is the pending-signal poll cadence in poll mode.
	PollIntervalMs int `toml:"poll_interval_ms"`
}

// PlayerConfig holds the playback state restored on the next start.
type PlayerConfig struct {
	// Volume is the output volume, 0 to 100.
	Volume int `toml:"volume"`
	// Shuffle enables random track order.
	Shuffle bool `toml:"shuffle"`
	// Repeat is "off", "one" or "all".
	Repeat string `toml:"repeat"`
	// LastFile is the track that was playing at exit.
	LastFile string `toml:"last_file,omitempty"`
	// Ignore lists glob patterns of files never resumed or queued.
	Ignore []string `toml:"ignore"`
}

// BehaviorConfig holds background task settings.
type BehaviorConfig struct {
	// AutosaveSeconds is the period of the background save. 0 disables it.
	AutosaveSeconds int `toml:"autosave_seconds"`
}

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultConfig returns a Config with built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
		Signals: SignalsConfig{
			Mode:           "auto",
			PollIntervalMs: int(signals.DefaultPollInterval / time.Millisecond),
		},
		Player: PlayerConfig{
			Volume: 70,
			Repeat: "off",
			Ignore: []string{},
		},
		Behavior: BehaviorConfig{
			AutosaveSeconds: 300,
		},
	}
}

// WriteDefault writes data to path unless a file already exists there. The
// caller passes the embedded default config so first-run users get the
// commented file instead of an encoder dump.
func WriteDefault(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}

// ///////////////////////////////////////////////
// Load / Save
// ///////////////////////////////////////////////

// Load reads the config file at path over the defaults. A missing file
// yields the defaults. Unknown keys are logged and ignored.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("ignoring unknown config keys", "keys", strings.Join(keys, ","))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path atomically.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// Validate checks every field, returning all problems joined.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := logger.ParseLevel(c.Log.Level); !ok || strings.EqualFold(c.Log.Level, "fail") {
		errs = append(errs, fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level))
	}
	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB))
	}

	if _, _, err := signals.ParseMode(c.Signals.Mode); err != nil {
		errs = append(errs, fmt.Errorf("invalid signals.mode: %w", err))
	}
	if c.Signals.PollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("signals.poll_interval_ms must be > 0, got %d", c.Signals.PollIntervalMs))
	}

	if c.Player.Volume < 0 || c.Player.Volume > 100 {
		errs = append(errs, fmt.Errorf("player.volume must be between 0 and 100, got %d", c.Player.Volume))
	}
	switch c.Player.Repeat {
	case "off", "one", "all":
	default:
		errs = append(errs, fmt.Errorf("invalid player.repeat %q: must be off, one, or all", c.Player.Repeat))
	}
	for _, p := range c.Player.Ignore {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("invalid player.ignore pattern %q", p))
		}
	}

	if c.Behavior.AutosaveSeconds < 0 {
		errs = append(errs, fmt.Errorf("behavior.autosave_seconds must be >= 0, got %d", c.Behavior.AutosaveSeconds))
	}

	return errors.Join(errs...)
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() slog.Level {
	l, _ := logger.ParseLevel(c.Log.Level)
	return l
}

// PollInterval returns the signal poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Signals.PollIntervalMs) * time.Millisecond
}

// AutosaveInterval returns the autosave period, or 0 when disabled.
func (c *Config) AutosaveInterval() time.Duration {
	return time.Duration(c.Behavior.AutosaveSeconds) * time.Second
}

// IsIgnored reports whether file matches any player.ignore pattern.
// Matching uses forward slashes on every platform.
func (c *Config) IsIgnored(file string) bool {
	file = strings.ReplaceAll(file, `\`, "/")
	for _, pattern := range c.Player.Ignore {
		if ok, _ := doublestar.Match(pattern, file); ok {
			return true
		}
	}
	return false
}

// ResumeFile returns the track to resume, or "" when there is none or it is
// ignored.
func (c *Config) ResumeFile() string {
	if c.Player.LastFile == "" || c.IsIgnored(c.Player.LastFile) {
		return ""
	}
	return c.Player.LastFile
}

// clone returns a deep copy of c.
func (c *Config) clone() *Config {
	cp := *c
	cp.Player.Ignore = append([]string(nil), c.Player.Ignore...)
	return &cp
}
