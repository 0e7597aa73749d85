// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "voicechat"
	configFileName = "config.json"
)

// Defaults.
const (
	DefaultLanguage  = "en-US"
	DefaultChannel   = "vscode-chrome"
	DefaultRelayAddr = "127.0.0.1:8787"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config represents the application configuration.
type Config struct {
	// Language is the recognizer's BCP 47 language tag.
	Language string `json:"language" yaml:"language"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	Realtime RealtimeConfig `json:"realtime" yaml:"realtime"`
	Relay    RelayConfig    `json:"relay" yaml:"relay"`
	Timing   TimingConfig   `json:"timing" yaml:"timing"`
}

// RealtimeConfig locates the realtime channel.
type RealtimeConfig struct {
	// URL is the realtime endpoint: a hub websocket (ws, wss) or a WebRTC
	// signaling endpoint (http, https). Empty keeps the peer channel in-process.
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Channel string `json:"channel" yaml:"channel"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	OriginPatterns []string `json:"origin_patterns,omitempty" yaml:"origin_patterns,omitempty"`
}

// TimingConfig holds the delays that order effects on the host page.
type TimingConfig struct {
	PollInterval    Duration `json:"poll_interval" yaml:"poll_interval"`
	PollMaxDuration Duration `json:"poll_max_duration" yaml:"poll_max_duration"`
	SubmitSettle    Duration `json:"submit_settle" yaml:"submit_settle"`
	SpeakSettle     Duration `json:"speak_settle" yaml:"speak_settle"`
	ListenSettle    Duration `json:"listen_settle" yaml:"listen_settle"`
	AnnounceDelay   Duration `json:"announce_delay" yaml:"announce_delay"`
	ActivityTTL     Duration `json:"activity_ttl" yaml:"activity_ttl"`
}

// Duration is a time.Duration written as a Go duration string ("1.5s").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Language: DefaultLanguage,
		Realtime: RealtimeConfig{Channel: DefaultChannel},
		Relay:    RelayConfig{Addr: DefaultRelayAddr},
		Timing: TimingConfig{
			PollInterval:    Duration(100 * time.Millisecond),
			PollMaxDuration: Duration(2 * time.Minute),
			SubmitSettle:    Duration(1500 * time.Millisecond),
			SpeakSettle:     Duration(500 * time.Millisecond),
			ListenSettle:    Duration(300 * time.Millisecond),
			AnnounceDelay:   Duration(time.Second),
			ActivityTTL:     Duration(3 * time.Second),
		},
	}
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Load loads configuration from the default config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path. Files ending in .yaml or .yml are
// read as YAML, anything else as JSON. Fields absent from the file keep their
// defaults. Returns default config if the file doesn't exist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists the configuration to the default config file.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	return c.SaveFile(path)
}

// SaveFile persists the configuration to path in the format its extension names.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("%w: language %q: %v", ErrInvalid, c.Language, err)
	}
	if c.Realtime.Channel == "" {
		return fmt.Errorf("%w: realtime channel required", ErrInvalid)
	}
	if u := c.Realtime.URL; u != "" {
		parsed, err := url.Parse(u)
		if err != nil {
			return fmt.Errorf("%w: realtime url %q: %v", ErrInvalid, u, err)
		}
		switch parsed.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return fmt.Errorf("%w: realtime url %q: unsupported scheme %q", ErrInvalid, u, parsed.Scheme)
		}
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"poll_interval", c.Timing.PollInterval},
		{"poll_max_duration", c.Timing.PollMaxDuration},
		{"announce_delay", c.Timing.AnnounceDelay},
		{"activity_ttl", c.Timing.ActivityTTL},
	}
	for _, f := range durations {
		if f.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, f.name)
		}
	}

	// Settle delays may be zero.
	settles := []struct {
		name string
		d    Duration
	}{
		{"submit_settle", c.Timing.SubmitSettle},
		{"speak_settle", c.Timing.SpeakSettle},
		{"listen_settle", c.Timing.ListenSettle},
	}
	for _, f := range settles {
		if f.d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, f.name)
		}
	}

	if c.Timing.PollMaxDuration < c.Timing.PollInterval {
		return fmt.Errorf("%w: poll_max_duration shorter than poll_interval", ErrInvalid)
	}
	return nil
}

// LanguageTag returns the canonical form of the recognizer language.
func (c *Config) LanguageTag() string {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return c.Language
	}
	return tag.String()
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
