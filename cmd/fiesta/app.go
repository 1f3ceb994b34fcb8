package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"fiesta/internal/assist"
	"fiesta/internal/config"
	"fiesta/internal/logging"
	"fiesta/internal/preview"
	"fiesta/internal/router"
	"fiesta/internal/sandbox"
	"fiesta/internal/store"
	"fiesta/internal/studio"
	"fiesta/internal/terminal"
	"fiesta/internal/watch"
	"fiesta/internal/workspace"
)

// errNotInitialized is returned by commands run outside a workspace.
var errNotInitialized = errors.New("workspace not initialized; run 'fiesta init' first")

// app is one CLI invocation's view of the workspace.
type app struct {
	ws      string
	cfg     *config.Config
	store   *store.Store
	studio  *studio.Studio
	printer *terminal.Printer
	serve   *sandbox.ServeBackend

	unsubscribe func()
}

// openOptions selects which collaborators a command needs.
type openOptions struct {
	// live starts isolation hosts and enables auto refresh.
	live bool
	// echo prints terminal entries as they are appended.
	echo bool
}

func resolveWorkspace() (string, error) {
	ws := workspaceDir
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Abs(ws)
}

func loadConfig(ws string) (*config.Config, error) {
	cfg, err := config.Load(config.DefaultPath(ws))
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.Assist.APIKey = apiKey
	}
	if backendName != "" {
		cfg.Sandbox.Backend = backendName
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initialized(ws string) bool {
	if _, err := os.Stat(config.DefaultPath(ws)); err == nil {
		return true
	}
	_, err := os.Stat(filepath.Join(ws, workspace.RootMarkup))
	return err == nil
}

func openApp(ctx context.Context, opts openOptions) (*app, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}
	if !initialized(ws) {
		return nil, errNotInitialized
	}
	cfg, err := loadConfig(ws)
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(cfg.Logging.ToLogging(ws)); err != nil {
		logger.Warn("Failed to initialize file logging", zap.Error(err))
	}
	if verbose && !logging.IsDebugMode() {
		logging.SetBase(logger)
	}
	logging.Boot("opening workspace %s (live=%t)", ws, opts.live)

	a := &app{ws: ws, cfg: cfg, printer: terminal.NewPrinter(os.Stdout, plain)}

	var (
		snap    workspace.Snapshot
		history []assist.Turn
		journal terminal.Journal
	)
	if cfg.Store.Enabled {
		st, err := store.Open(config.ResolvePath(ws, cfg.Store.Path))
		if err != nil {
			return nil, err
		}
		a.store = st
		journal = st

		if snap, _, err = st.LoadWorkspace(); err != nil {
			a.close()
			return nil, err
		}
		if history, err = st.Messages(-1); err != nil {
			a.close()
			return nil, err
		}
	}

	// Files on disk win over the stored copy; the store keeps the rest.
	disk, err := watch.LoadDir(ws)
	if err != nil {
		a.close()
		return nil, err
	}
	if disk.Len() > 0 {
		snap.Files = disk
	}

	term := terminal.New(journal)
	if a.store != nil {
		logs, err := a.store.Logs(-1)
		if err != nil {
			a.close()
			return nil, err
		}
		term.Restore(logs)
	}
	if opts.echo {
		a.unsubscribe = term.Subscribe(a.printer.Print)
	}

	studioOpts := studio.Options{
		Composer:    preview.NewComposer(cfg.Preview.CDNBase),
		Terminal:    term,
		Router:      router.New(router.NewMarkdownScanner()),
		Store:       a.store,
		AutoRefresh: opts.live && cfg.Preview.AutoRefresh,
		ProjectDir:  ws,
	}
	if cfg.Assist.HasCredentials() {
		client, err := assist.NewGeminiClient(ctx, cfg.Assist, cfg.GetAssistTimeout())
		if err != nil {
			a.close()
			return nil, err
		}
		studioOpts.AI = client
	}
	if opts.live {
		if err := a.attachHosts(&studioOpts); err != nil {
			a.close()
			return nil, err
		}
	}

	a.studio = studio.New(studioOpts, snap, history)
	logger.Debug("Workspace opened",
		zap.String("path", ws),
		zap.Int("documents", a.studio.Files().Len()),
		zap.Int("dependencies", len(a.studio.Dependencies())))
	return a, nil
}

func (a *app) attachHosts(opts *studio.Options) error {
	backend, err := sandbox.NewBackend(a.cfg)
	switch {
	case errors.Is(err, sandbox.ErrNoBackend):
		logger.Info("Preview backend disabled")
		logging.BootWarn("no preview backend configured, running without an isolated context")
	case err != nil:
		return err
	default:
		opts.Preview = sandbox.NewHost(backend, a.cfg.Sandbox.InboundBuffer)
		a.serve, _ = backend.(*sandbox.ServeBackend)
	}

	interp, err := sandbox.NewInterpHost(a.cfg)
	switch {
	case errors.Is(err, sandbox.ErrNoBackend):
		logger.Info("Go interpreter disabled")
	case err != nil:
		return err
	default:
		opts.Interp = interp
	}
	return nil
}

// requireAI fails fast when no AI collaborator is configured.
func (a *app) requireAI() error {
	if !a.cfg.Assist.HasCredentials() {
		return fmt.Errorf("%w: set GEMINI_API_KEY or pass --api-key", assist.ErrMissingAPIKey)
	}
	return nil
}

func (a *app) close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.studio != nil {
		if err := a.studio.Close(); err != nil {
			logger.Warn("Failed to close sandbox", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	logging.CloseAll()
}
