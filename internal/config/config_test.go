package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"API_KEY", "GEMINI_API_KEY", "FIESTA_MODEL", "FIESTA_CDN_BASE",
		"FIESTA_BROWSER_URL", "FIESTA_SANDBOX_BACKEND", "FIESTA_DB_PATH", "FIESTA_SERVE_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "fiesta", cfg.Name)
	assert.Equal(t, "https://esm.sh", cfg.Preview.CDNBase)
	assert.Equal(t, "browser", cfg.Sandbox.Backend)
	assert.Equal(t, "gemini-2.5-flash", cfg.Assist.Model)
	assert.NotContains(t, cfg.Sandbox.Interp.AllowedPackages, "os")
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".fiesta", "config.yaml")
	cfg := DefaultConfig()
	cfg.Sandbox.Backend = "process"
	cfg.Sandbox.Process.Command = []string{"deno", "run", "runner.ts"}
	cfg.Assist.APIKey = "k-test"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "process", loaded.Sandbox.Backend)
	assert.Equal(t, []string{"deno", "run", "runner.ts"}, loaded.Sandbox.Process.Command)
	assert.Equal(t, "k-test", loaded.Assist.APIKey)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Preview, cfg.Preview)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("API_KEY sets the assist key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "generic")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "generic", cfg.Assist.APIKey)
		assert.Empty(t, cfg.Assist.Provider)
	})

	t.Run("GEMINI_API_KEY wins over API_KEY", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "generic")
		t.Setenv("GEMINI_API_KEY", "gem")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "gem", cfg.Assist.APIKey)
		assert.Equal(t, "gemini", cfg.Assist.Provider)
	})

	t.Run("sandbox and preview overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FIESTA_SANDBOX_BACKEND", "PROCESS")
		t.Setenv("FIESTA_CDN_BASE", "https://cdn.example")
		t.Setenv("FIESTA_BROWSER_URL", "ws://127.0.0.1:9222/devtools/browser/x")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "process", cfg.Sandbox.Backend)
		assert.Equal(t, "https://cdn.example", cfg.Preview.CDNBase)
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", cfg.Sandbox.Browser.ControlURL)
	})

	t.Run("serve address", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FIESTA_SERVE_ADDR", "0.0.0.0:9000")

		cfg := DefaultConfig()
		assert.Equal(t, DefaultServeAddr, cfg.Sandbox.Serve.Addr)
		cfg.applyEnvOverrides()
		assert.Equal(t, "0.0.0.0:9000", cfg.Sandbox.Serve.Addr)
	})
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.Backend = "iframe"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Sandbox.Backend = "serve"
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Sandbox.Backend = "process"
	cfg.Sandbox.Process.Command = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Store.Path = ""
	assert.Error(t, cfg.Validate())

	cfg.Store.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.GetAssistTimeout())

	cfg.Assist.Timeout = "bogus"
	assert.Equal(t, 120*time.Second, cfg.GetAssistTimeout())

	cfg.Sandbox.Browser.LaunchTimeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.GetLaunchTimeout())

	assert.Equal(t, "/ws/.fiesta/fiesta.db", ResolvePath("/ws", ".fiesta/fiesta.db"))
	assert.Equal(t, "/abs/x.db", ResolvePath("/ws", "/abs/x.db"))

	lc := LoggingConfig{DebugMode: true, Categories: map[string]bool{"router": false}}
	assert.False(t, lc.IsCategoryEnabled("router"))
	assert.True(t, lc.IsCategoryEnabled("sandbox"))
	assert.Equal(t, "/ws/.fiesta/logs", LoggingConfig{Dir: ".fiesta/logs"}.ToLogging("/ws").Dir)
}
