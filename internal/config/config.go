package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all fiesta configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Preview composition
	Preview PreviewConfig `yaml:"preview"`

	// Isolation host backends
	Sandbox SandboxConfig `yaml:"sandbox"`

	// AI completion collaborator
	Assist AssistConfig `yaml:"assist"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PreviewConfig configures the environment composer.
type PreviewConfig struct {
	// CDNBase is the module host every dependency resolves against.
	CDNBase string `yaml:"cdn_base"`

	// AutoRefresh rebuilds the preview after every document mutation.
	AutoRefresh bool `yaml:"auto_refresh"`
}

// StoreConfig configures the SQLite workspace store.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "fiesta",
		Version: "0.3.0",

		Preview: PreviewConfig{
			CDNBase:     "https://esm.sh",
			AutoRefresh: true,
		},

		Sandbox: SandboxConfig{
			Backend:       "browser",
			InboundBuffer: 256,
			Browser: BrowserConfig{
				Headless:      true,
				LaunchTimeout: "30s",
			},
			Serve: ServeConfig{
				Addr: DefaultServeAddr,
			},
			Process: ProcessConfig{
				Command: []string{"node", ".fiesta/runner.mjs"},
			},
			Interp: InterpConfig{
				Enabled:         true,
				AllowedPackages: DefaultInterpPackages(),
			},
		},

		Assist: AssistConfig{
			Provider:           "gemini",
			Model:              "gemini-2.5-flash",
			Timeout:            "120s",
			Temperature:        0.2,
			PersonaTemperature: 0.8,
		},

		Store: StoreConfig{
			Enabled: true,
			Path:    ".fiesta/fiesta.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Dir:    ".fiesta/logs",
		},
	}
}

// DefaultPath returns the config file location for a workspace root.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".fiesta", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API_KEY is the generic name the hosted build injects; GEMINI_API_KEY wins.
	if key := os.Getenv("API_KEY"); key != "" {
		c.Assist.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Assist.APIKey = key
		c.Assist.Provider = "gemini"
	}
	if model := os.Getenv("FIESTA_MODEL"); model != "" {
		c.Assist.Model = model
	}
	if base := os.Getenv("FIESTA_CDN_BASE"); base != "" {
		c.Preview.CDNBase = base
	}
	if url := os.Getenv("FIESTA_BROWSER_URL"); url != "" {
		c.Sandbox.Browser.ControlURL = url
	}
	if backend := os.Getenv("FIESTA_SANDBOX_BACKEND"); backend != "" {
		c.Sandbox.Backend = strings.ToLower(backend)
	}
	if addr := os.Getenv("FIESTA_SERVE_ADDR"); addr != "" {
		c.Sandbox.Serve.Addr = addr
	}
	if path := os.Getenv("FIESTA_DB_PATH"); path != "" {
		c.Store.Path = path
	}
}

// GetAssistTimeout returns the AI call timeout.
func (c *Config) GetAssistTimeout() time.Duration {
	return parseDuration(c.Assist.Timeout, 120*time.Second)
}

// GetLaunchTimeout returns the browser launch timeout.
func (c *Config) GetLaunchTimeout() time.Duration {
	return parseDuration(c.Sandbox.Browser.LaunchTimeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Sandbox.Backend {
	case "browser", "serve", "process", "none":
	default:
		return fmt.Errorf("unknown sandbox backend %q (want browser, serve, process or none)", c.Sandbox.Backend)
	}
	if c.Sandbox.Backend == "process" && len(c.Sandbox.Process.Command) == 0 {
		return fmt.Errorf("sandbox.process.command is required for the process backend")
	}
	if c.Sandbox.InboundBuffer < 0 {
		return fmt.Errorf("sandbox.inbound_buffer must not be negative")
	}
	if c.Preview.CDNBase == "" {
		return fmt.Errorf("preview.cdn_base is required")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when the store is enabled")
	}
	return nil
}

// ResolvePath makes a workspace-relative path absolute.
func ResolvePath(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}
