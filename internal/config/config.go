// Package config provides configuration loading and management for scanview.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/philipparndt/scanview/internal/catalog"
	"github.com/philipparndt/scanview/internal/loader"
	"github.com/philipparndt/scanview/internal/order"
	"github.com/philipparndt/scanview/internal/viewport"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Backend is the scan catalog service
	Backend struct {
		// URL is the base address of the catalog, e.g. http://localhost:8000
		URL string `yaml:"url"`

		// Timeout bounds every HTTP request
		Timeout time.Duration `yaml:"timeout"`

		// CacheTTL is how long scan and slice listings are reused
		CacheTTL time.Duration `yaml:"cacheTTL"`
	} `yaml:"backend"`

	// Auth parameters
	Auth struct {
		// TokenEnv names the environment variable holding the bearer token
		TokenEnv string `yaml:"tokenEnv"`

		// TokenFile is read when the environment variable is empty
		TokenFile string `yaml:"tokenFile"`
	} `yaml:"auth"`

	// Slices controls how slice locators are ordered and fetched
	Slices struct {
		Prefix string `yaml:"prefix"`
		Suffix string `yaml:"suffix"`

		// Expr replaces prefix and suffix with a regular expression that has exactly one capture group
		Expr string `yaml:"expr"`

		CacheSize int `yaml:"cacheSize"`
		Parallel  int `yaml:"parallel"`
	} `yaml:"slices"`

	// Mesh holds the 3D camera and render parameters
	Mesh struct {
		CameraDistance float64 `yaml:"cameraDistance"`
		FieldOfView    float64 `yaml:"fov"`
		Damping        float64 `yaml:"damping"`
		FrameRate      int     `yaml:"frameRate"`
		Scale          float64 `yaml:"scale"`
	} `yaml:"mesh"`

	Log struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Backend.URL = "http://localhost:8000"
	cfg.Backend.Timeout = loader.DefaultTimeout
	cfg.Backend.CacheTTL = catalog.DefaultListingTTL

	cfg.Auth.TokenEnv = "SCANVIEW_TOKEN"

	cfg.Slices.Prefix = order.DefaultPrefix
	cfg.Slices.Suffix = order.DefaultSuffix
	cfg.Slices.CacheSize = loader.DefaultCacheSize
	cfg.Slices.Parallel = loader.DefaultParallel

	view := viewport.DefaultConfig()
	cfg.Mesh.CameraDistance = view.CameraDistance
	cfg.Mesh.FieldOfView = view.FieldOfView
	cfg.Mesh.Damping = view.Damping
	cfg.Mesh.FrameRate = view.FrameRate
	cfg.Mesh.Scale = view.MeshScale

	cfg.Log.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Write encodes cfg as YAML to w
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return enc.Close()
}

// DefaultPath is the per-user config file location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "scanview.yaml"
	}
	return filepath.Join(dir, "scanview", "config.yaml")
}

// Credential returns the token sources in lookup order: environment, then file
func (c *Config) Credential() loader.Credential {
	var creds loader.FirstCredential
	if c.Auth.TokenEnv != "" {
		creds = append(creds, loader.EnvCredential(c.Auth.TokenEnv))
	}
	if c.Auth.TokenFile != "" {
		creds = append(creds, loader.FileCredential(c.Auth.TokenFile))
	}
	return creds
}

// LoaderOptions builds the resource loader settings
func (c *Config) LoaderOptions() loader.Options {
	return loader.Options{
		Client:     &http.Client{Timeout: c.Backend.Timeout},
		Credential: c.Credential(),
		CacheSize:  c.Slices.CacheSize,
		Parallel:   c.Slices.Parallel,
	}
}

// Pattern compiles the slice naming pattern
func (c *Config) Pattern() (order.Pattern, error) {
	return order.ParsePattern(c.Slices.Prefix, c.Slices.Suffix, c.Slices.Expr)
}

// Viewport returns the handle settings; zero values fall back to the defaults
func (c *Config) Viewport() viewport.Config {
	view := viewport.DefaultConfig()
	if c.Mesh.CameraDistance > 0 {
		view.CameraDistance = c.Mesh.CameraDistance
	}
	if c.Mesh.FieldOfView > 0 {
		view.FieldOfView = c.Mesh.FieldOfView
	}
	if c.Mesh.Damping >= 0 && c.Mesh.Damping < 1 {
		view.Damping = c.Mesh.Damping
	}
	if c.Mesh.FrameRate > 0 {
		view.FrameRate = c.Mesh.FrameRate
	}
	if c.Mesh.Scale > 0 {
		view.MeshScale = c.Mesh.Scale
	}
	return view
}

// LogLevel parses Log.Level, defaulting to info
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
