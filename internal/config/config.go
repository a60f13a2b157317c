// Package config provides configuration management for jitserve using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration file is .jitserve.yml; every key can be overridden with a
// JITSERVE_ prefixed environment variable (JITSERVE_SERVER_PORT, JITSERVE_OUT).
// It carries the project layout (working directory, root, output and dist
// directories), transform options (sourcemaps, path aliases, profiling), the
// HTTP listener and the watcher debounce window.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultDebounce is the delay between the first unflushed change and the
// aggregated change notification.
const DefaultDebounce = 60 * time.Millisecond

type Config struct {
	WorkDir   string            `yaml:"cwd" mapstructure:"cwd"`
	Root      string            `yaml:"root" mapstructure:"root"`
	Out       string            `yaml:"out" mapstructure:"out"`
	DistDir   string            `yaml:"dist" mapstructure:"dist"`
	Sourcemap bool              `yaml:"sourcemap" mapstructure:"sourcemap"`
	Aliases   map[string]string `yaml:"aliases" mapstructure:"aliases"`
	Profile   bool              `yaml:"profile" mapstructure:"profile"`
	Server    ServerConfig      `yaml:"server" mapstructure:"server"`
	Watch     WatchConfig       `yaml:"watch" mapstructure:"watch"`
	Log       LogConfig         `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	LiveReload bool   `yaml:"live_reload" mapstructure:"live_reload"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Ignore   []string      `yaml:"ignore" mapstructure:"ignore"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns a configuration rooted at the current working directory.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{LiveReload: true},
		Watch:  WatchConfig{Enabled: true},
	}
	_ = cfg.applyDefaults()
	return cfg
}

// Load reads the configuration currently held by viper, applies defaults and
// validates the result.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Booleans that default to true cannot be told apart from an explicit false
	// after Unmarshal, so consult viper directly.
	config.Server.LiveReload = true
	if viper.IsSet("server.live_reload") {
		config.Server.LiveReload = viper.GetBool("server.live_reload")
	}
	config.Watch.Enabled = true
	if viper.IsSet("watch.enabled") {
		config.Watch.Enabled = viper.GetBool("watch.enabled")
	}

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() error {
	if c.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		c.WorkDir = wd
	}
	wd, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	c.WorkDir = wd

	// The project root defaults to the working directory.
	if c.Root == "" {
		c.Root = c.WorkDir
	} else if !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(c.WorkDir, c.Root)
	}
	c.Root = filepath.Clean(c.Root)

	if c.Out == "" {
		c.Out = ".jitserve"
	}
	if !filepath.IsAbs(c.Out) {
		c.Out = filepath.Join(c.WorkDir, c.Out)
	}
	c.Out = filepath.Clean(c.Out)

	if c.DistDir == "" {
		c.DistDir = "dist"
	}

	if c.Aliases == nil {
		c.Aliases = make(map[string]string)
	}

	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = DefaultDebounce
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	return nil
}

// DistPath returns the absolute dist directory excluded from watching.
func (c *Config) DistPath() string {
	if filepath.IsAbs(c.DistDir) {
		return filepath.Clean(c.DistDir)
	}
	return filepath.Join(c.WorkDir, c.DistDir)
}

// ManifestPath returns the package manifest watched alongside the root.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.WorkDir, "package.json")
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	if config.Out == config.Root {
		return fmt.Errorf("out directory must differ from the project root: %s", config.Out)
	}

	for from, to := range config.Aliases {
		if strings.TrimSpace(from) == "" {
			return fmt.Errorf("alias with empty name maps to %q", to)
		}
		if err := validatePath(to); err != nil {
			return fmt.Errorf("alias %q: %w", from, err)
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			return fmt.Errorf("host %q: %w", config.Host, err)
		}
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative: %s", config.Debounce)
	}
	if config.Debounce > 10*time.Second {
		return fmt.Errorf("debounce %s is too long for interactive reloads", config.Debounce)
	}
	return nil
}

// validatePath validates an alias target
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.ToSlash(filepath.Clean(path))
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") {
		return fmt.Errorf("path leaves the project root: %s", path)
	}

	return nil
}
