package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache adapter names.
const (
	AdapterSQLite = "sqlite"
	AdapterBolt   = "bolt"
	AdapterFS     = "fs"
	AdapterMemory = "memory"
)

// Adapters lists the cache adapters New can open.
var Adapters = []string{AdapterSQLite, AdapterBolt, AdapterFS, AdapterMemory}

// Environment variables read by LoadConfig. They win over the file.
const (
	EnvBaseURL       = "NOTESYNC_BASE_URL"
	EnvProjectID     = "NOTESYNC_MOCKAPI_PROJECT_ID"
	EnvCacheDir      = "NOTESYNC_CACHE_DIR"
	EnvCacheAdapter  = "NOTESYNC_CACHE_ADAPTER"
	EnvRemoteTimeout = "NOTESYNC_REMOTE_TIMEOUT"
)

// Config is the file configuration (.notesync.yaml).
type Config struct {
	Remote       RemoteConfig       `yaml:"remote"`
	Cache        CacheConfig        `yaml:"cache"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Events       EventsConfig       `yaml:"events"`
	Log          LogConfig          `yaml:"log"`
}

type RemoteConfig struct {
	BaseURL     string        `yaml:"base_url"`
	ProjectID   string        `yaml:"project_id"`
	Timeout     time.Duration `yaml:"timeout"`
	SearchParam string        `yaml:"search_param"`
}

type CacheConfig struct {
	Adapter string `yaml:"adapter"`
	Dir     string `yaml:"dir"`
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
}

type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{Adapter: AdapterSQLite},
		Log:   LogConfig{Level: "info"},
	}
}

// LoadConfig reads the file at path (skipped when empty) over DefaultConfig
// and applies environment overrides. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeConfig(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables looked up by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBaseURL); v != "" {
		c.Remote.BaseURL = v
	}
	if v := getenv(EnvProjectID); v != "" {
		c.Remote.ProjectID = v
	}
	if v := getenv(EnvCacheDir); v != "" {
		c.Cache.Dir = v
	}
	if v := getenv(EnvCacheAdapter); v != "" {
		c.Cache.Adapter = v
	}
	if v := getenv(EnvRemoteTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// Plain numbers are seconds.
			secs, nerr := strconv.Atoi(v)
			if nerr != nil {
				return fmt.Errorf("%s: %w", EnvRemoteTimeout, err)
			}
			d = time.Duration(secs) * time.Second
		}
		c.Remote.Timeout = d
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Cache.Adapter != "" && !slices.Contains(Adapters, c.Cache.Adapter) {
		return fmt.Errorf("unknown cache adapter %q (want one of %v)", c.Cache.Adapter, Adapters)
	}
	if c.Remote.Timeout < 0 || c.Connectivity.ProbeInterval < 0 || c.Connectivity.MaxBackoff < 0 {
		return errors.New("durations must not be negative")
	}
	if c.Events.Buffer < 0 {
		return errors.New("events.buffer must not be negative")
	}
	return nil
}
