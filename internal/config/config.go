// Package config loads the tracegen runtime configuration from
// .tracegen/config.yaml and platform credentials from .tracegen/platforms.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cgast/tracegen/internal/sandbox"
)

// Dir is the project-local configuration directory.
const Dir = ".tracegen"

// Store backends.
const (
	BackendBolt = "bolt"
	BackendFile = "file"
)

// Config represents the runtime configuration from .tracegen/config.yaml.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // "pretty", "text" or "json"
	Store     StoreConfig     `yaml:"store"`
	Export    ExportConfig    `yaml:"export"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Server    ServerConfig    `yaml:"server"`
	Generator GeneratorConfig `yaml:"generator"`
	Events    EventsConfig    `yaml:"events"`
}

// EventsConfig bounds the in-process event history.
type EventsConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// StoreConfig selects the durable context backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// ExportConfig defines where artifacts go by default.
type ExportConfig struct {
	Dir     string `yaml:"dir"`
	TempDir string `yaml:"temp_dir"`
}

// SandboxConfig defines filesystem restrictions for export destinations.
type SandboxConfig struct {
	AllowedPaths []string `yaml:"allowed_paths"`
	DeniedPaths  []string `yaml:"denied_paths"`
	MaxFileSize  string   `yaml:"max_file_size"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GeneratorConfig points at a file holding collaborator output.
type GeneratorConfig struct {
	Path string `yaml:"path"`
}

// PlatformConfig represents platform credentials from .tracegen/platforms.yaml.
type PlatformConfig struct {
	GitHub GitHubConfig `yaml:"github"`
}

// GitHubConfig holds GitHub tracker settings.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	Repo    string `yaml:"repo"`
	BaseURL string `yaml:"base_url"`
}

// DefaultStorePath returns the store location used when store.path is unset:
// a bbolt file, or a directory of JSON files for the file backend.
func DefaultStorePath(backend string) string {
	if backend == BackendFile {
		return filepath.Join(Dir, "contexts")
	}
	return filepath.Join(Dir, "contexts.db")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "pretty",
		Store: StoreConfig{
			Backend: BackendBolt,
			Path:    DefaultStorePath(BackendBolt),
		},
		Export: ExportConfig{
			Dir: "exports",
		},
		Sandbox: SandboxConfig{
			DeniedPaths: []string{"/etc", "/usr", Dir},
			MaxFileSize: "50MB",
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			AllowedOrigins: []string{"*"},
		},
		Events: EventsConfig{HistoryLimit: 10000},
	}
}

// Validate reports configuration values that cannot be used.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendBolt, BackendFile:
	default:
		return fmt.Errorf("store.backend %q: must be %q or %q", c.Store.Backend, BackendBolt, BackendFile)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	switch c.LogFormat {
	case "", "pretty", "text", "json":
	default:
		return fmt.Errorf("log_format %q: must be pretty, text or json", c.LogFormat)
	}
	if c.Events.HistoryLimit < 0 {
		return fmt.Errorf("events.history_limit must not be negative")
	}
	return nil
}

// SandboxPolicy converts the sandbox section into a sandbox.Config. With no
// allowed_paths configured, artifacts may only go to the export directory
// and the temp directory. The context store's own path is always denied.
func (c Config) SandboxPolicy() sandbox.Config {
	allowed := c.Sandbox.AllowedPaths
	if len(allowed) == 0 {
		if c.Export.Dir != "" {
			allowed = append(allowed, c.Export.Dir)
		}
		allowed = append(allowed, c.TempDir())
	}
	denied := append(append([]string(nil), c.Sandbox.DeniedPaths...), c.Store.Path)
	return sandbox.Config{
		AllowedPaths: allowed,
		DeniedPaths:  denied,
		MaxFileSize:  c.Sandbox.MaxFileSize,
	}
}

// TempDir returns the directory for generated artifacts without a destination.
func (c Config) TempDir() string {
	if c.Export.TempDir != "" {
		return c.Export.TempDir
	}
	return os.TempDir()
}

// LoadConfig reads and parses a runtime config YAML file.
// Returns default config if the file doesn't exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.Store.Path = ""
	if err := yaml.Unmarshal([]byte(interpolateEnvVars(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath(cfg.Store.Backend)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadPlatformConfig reads and parses a platform credentials YAML file.
// Performs environment variable interpolation on string values. GITHUB_TOKEN
// fills an empty token.
func LoadPlatformConfig(path string) (PlatformConfig, error) {
	var cfg PlatformConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(interpolateEnvVars(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("parse platform config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("read platform config %s: %w", path, err)
	}

	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
