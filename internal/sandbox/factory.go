package sandbox

import (
	"fmt"

	"fiesta/internal/config"
)

// NewBackend builds the preview backend named in cfg. The "none" backend
// yields ErrNoBackend so callers can run without an isolated context.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Sandbox.Backend {
	case "browser":
		return NewBrowserBackend(cfg.Sandbox.Browser, cfg.GetLaunchTimeout()), nil
	case "serve":
		return NewServeBackend(cfg.Sandbox.Serve), nil
	case "process":
		return NewProcessBackend(cfg.Sandbox.Process), nil
	case "none", "":
		return nil, ErrNoBackend
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Sandbox.Backend)
	}
}

// NewInterpHost builds the host for Go documents, or ErrNoBackend when the
// interpreter is disabled.
func NewInterpHost(cfg *config.Config) (*Host, error) {
	if !cfg.Sandbox.Interp.Enabled {
		return nil, ErrNoBackend
	}
	allowed := cfg.Sandbox.Interp.AllowedPackages
	if len(allowed) == 0 {
		allowed = config.DefaultInterpPackages()
	}
	return NewHost(NewInterpBackend(allowed), cfg.Sandbox.InboundBuffer), nil
}
