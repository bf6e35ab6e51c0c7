package config

import (
	"fmt"
	"net"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/danielcherubini/elegoo-printercore/errors"
)

// ConnectionConfig is a single configured printer, bound by the host shell to
// a discovered or manually-entered device. Mirrors spec §3's ConnectionConfig
// plus the host-visible options from §6.6.
type ConnectionConfig struct {
	Name           string `yaml:"name"`
	IPAddress      string `yaml:"ip_address"`
	ProxyEnabled   bool   `yaml:"proxy_enabled"`
	ProxyWSPort    int    `yaml:"proxy_ws_port,omitempty"`
	ProxyVideoPort int    `yaml:"proxy_video_port,omitempty"`
	AccessCode     string `yaml:"access_code,omitempty"`
	IsFDM          bool   `yaml:"is_fdm,omitempty"`
}

// Validate checks a single connection entry for internal consistency.
func (c ConnectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.IPAddress == "" {
		return fmt.Errorf("ip_address is required")
	}
	if net.ParseIP(c.IPAddress) == nil {
		return fmt.Errorf("ip_address %q is not a valid IP", c.IPAddress)
	}
	if c.ProxyEnabled {
		if c.ProxyWSPort <= 0 || c.ProxyWSPort > 65535 {
			return fmt.Errorf("proxy_ws_port %d out of range", c.ProxyWSPort)
		}
		if c.ProxyVideoPort <= 0 || c.ProxyVideoPort > 65535 {
			return fmt.Errorf("proxy_video_port %d out of range", c.ProxyVideoPort)
		}
		if c.ProxyVideoPort == c.ProxyWSPort {
			return fmt.Errorf("proxy_ws_port and proxy_video_port must differ")
		}
	}
	return nil
}

// Config is the top-level, persisted configuration document: global options
// plus the set of configured printers.
type Config struct {
	LogLevel         string             `yaml:"log_level,omitempty"`
	DiscoveryTimeout int                `yaml:"discovery_timeout_seconds,omitempty"`
	Printers         []ConnectionConfig `yaml:"printers,omitempty"`
}

// defaults supplies the values used when a field is left unset in the
// document on disk.
func defaults() Config {
	return Config{
		LogLevel:         "info",
		DiscoveryTimeout: 5,
	}
}

// Validate checks the whole document: global fields plus every printer
// entry, and rejects duplicate printer names.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug|info|warn|error", c.LogLevel)
	}

	if c.DiscoveryTimeout < 0 {
		return fmt.Errorf("discovery_timeout_seconds cannot be negative")
	}

	seen := make(map[string]bool, len(c.Printers))
	for i, p := range c.Printers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("printers[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("printers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Clone returns a deep copy of the config, used by SafeConfig to hand out
// copies that callers cannot mutate behind the registry's back.
func (c *Config) Clone() *Config {
	if c == nil {
		cfg := defaults()
		return &cfg
	}
	clone := *c
	clone.Printers = make([]ConnectionConfig, len(c.Printers))
	copy(clone.Printers, c.Printers)
	return &clone
}

// SafeConfig provides thread-safe access to a Config, the way
// config/config.go's SafeConfig does for the platform-wide document: readers
// get an isolated deep copy, writers go through Validate first.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg (or a defaulted empty Config, if nil) for
// concurrent access.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		d := defaults()
		cfg = &d
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validating it.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(fmt.Errorf("config cannot be nil"), "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.WrapInvalid(err, "SafeConfig", "Update", "config validation failed")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}

// LoadFile reads and validates a YAML config document from path.
func LoadFile(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadFile", "read config file")
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadFile", "parse yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadFile", "validate config")
	}

	return &cfg, nil
}

// SaveToFile marshals c as YAML and writes it to path with restrictive
// permissions.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "marshal yaml")
	}
	return safeWriteFile(path, data)
}

// String returns a YAML representation of the config, for logging.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(data)
}
