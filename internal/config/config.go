package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the contents of ~/.wingterm/config.yaml.
type Config struct {
	HostURL      string          `yaml:"host_url"`
	Simulated    bool            `yaml:"simulated"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
	PingInterval Duration        `yaml:"ping_interval"`
	Store        StoreConfig     `yaml:"store"`
	Logging      LoggingConfig   `yaml:"log"`
	Host         HostConfig      `yaml:"host"`
}

type ReconnectConfig struct {
	Base Duration `yaml:"base"`
	Max  Duration `yaml:"max"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"` // sqlite, file or memory
	Path string `yaml:"path"` // defaults per kind under ~/.wingterm
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type HostConfig struct {
	Addr        string   `yaml:"addr"`
	Shell       string   `yaml:"shell"`
	InitTimeout Duration `yaml:"init_timeout"`
	OutputRate  ByteSize `yaml:"output_rate"` // per second, 0 = unlimited
	MaxMessage  ByteSize `yaml:"max_message"`
}

const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		HostURL:      "ws://localhost:8765",
		Reconnect:    ReconnectConfig{Base: Duration(time.Second), Max: Duration(10 * time.Second)},
		PingInterval: Duration(30 * time.Second),
		Store:        StoreConfig{Kind: StoreFile},
		Logging:      LoggingConfig{Level: "info"},
		Host: HostConfig{
			Addr:        "0.0.0.0:8765",
			InitTimeout: Duration(5 * time.Second),
			MaxMessage:  10 << 20,
		},
	}
}

// Load reads configuration from path over the defaults. A missing file is
// not an error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("WTERM_HOST_URL"); v != "" {
		cfg.HostURL = v
	}
	if v := os.Getenv("WTERM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WTERM_STORE"); v != "" {
		cfg.Store.Kind = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.HostURL)
	if err != nil {
		return fmt.Errorf("host_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("host_url must use ws:// or wss://, got %q", c.HostURL)
	}
	if c.Reconnect.Base <= 0 {
		return fmt.Errorf("reconnect.base must be positive")
	}
	if c.Reconnect.Max < c.Reconnect.Base {
		return fmt.Errorf("reconnect.max must be at least reconnect.base")
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("ping_interval must not be negative")
	}
	switch c.Store.Kind {
	case StoreSQLite, StoreFile, StoreMemory:
	default:
		return fmt.Errorf("store.kind must be 'sqlite', 'file' or 'memory'")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if c.Host.InitTimeout <= 0 {
		return fmt.Errorf("host.init_timeout must be positive")
	}
	return nil
}

// StorePath resolves the persistence path, defaulting under Dir.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return ExpandHome(c.Store.Path)
	}
	name := "state.json"
	if c.Store.Kind == StoreSQLite {
		name = "state.db"
	}
	return InDir(name)
}

// Duration is a time.Duration written as a Go duration string ("1s").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return &yaml.TypeError{Errors: []string{"expected a duration string"}}
	}
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// ByteSize is a byte count written as "10MiB", "64 kB" or a plain number.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return &yaml.TypeError{Errors: []string{"expected a byte size"}}
	}
	v, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = ByteSize(v)
	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return humanize.IBytes(uint64(b)), nil
}
