package config

// SandboxConfig configures the isolation host.
type SandboxConfig struct {
	// Backend selects the isolated context implementation: browser, serve, process, none.
	Backend string `yaml:"backend"`

	// InboundBuffer bounds the diagnostic channel from isolated contexts to the bridge.
	InboundBuffer int `yaml:"inbound_buffer"`

	Browser BrowserConfig `yaml:"browser"`
	Serve   ServeConfig   `yaml:"serve"`
	Process ProcessConfig `yaml:"process"`
	Interp  InterpConfig  `yaml:"interp"`
}

// BrowserConfig configures the headless browser backend.
type BrowserConfig struct {
	// ControlURL attaches to an already running Chrome (DevTools websocket URL).
	ControlURL string `yaml:"control_url"`

	// Bin overrides the Chrome binary; empty lets the launcher find or download one.
	Bin string `yaml:"bin"`

	Headless      bool     `yaml:"headless"`
	Flags         []string `yaml:"flags"`
	LaunchTimeout string   `yaml:"launch_timeout"`
}

// DefaultServeAddr is where the serve backend listens by default.
const DefaultServeAddr = "127.0.0.1:8420"

// ServeConfig configures the HTTP preview backend, which publishes the live
// context for an ordinary browser to open.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// ProcessConfig configures the subprocess backend.
// The payload is written to the command's stdin; every stdout line is one wire message.
type ProcessConfig struct {
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir"`
	Env     []string `yaml:"env"`
}

// InterpConfig configures the Go interpreter used for main.go documents.
type InterpConfig struct {
	Enabled         bool     `yaml:"enabled"`
	AllowedPackages []string `yaml:"allowed_packages"`
}

// DefaultInterpPackages is the stdlib allow-list for interpreted Go documents.
// os, os/exec, net, syscall and unsafe are deliberately absent.
func DefaultInterpPackages() []string {
	return []string{
		"bytes",
		"encoding/base64",
		"encoding/json",
		"errors",
		"fmt",
		"math",
		"math/rand",
		"regexp",
		"sort",
		"strconv",
		"strings",
		"time",
		"unicode",
		"unicode/utf8",
	}
}
