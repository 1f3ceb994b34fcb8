package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"fiesta/internal/config"
	"fiesta/internal/logging"
	"fiesta/internal/preview"
)

// BrowserBackend renders payloads in headless Chromium. Each context is a
// fresh incognito page; the shim reports through a CDP runtime binding.
type BrowserBackend struct {
	cfg           config.BrowserConfig
	launchTimeout time.Duration

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewBrowserBackend creates a backend. The browser is launched or attached
// lazily on the first Start.
func NewBrowserBackend(cfg config.BrowserConfig, launchTimeout time.Duration) *BrowserBackend {
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}
	return &BrowserBackend{cfg: cfg, launchTimeout: launchTimeout}
}

// Name implements Backend.
func (b *BrowserBackend) Name() string { return "browser" }

func (b *BrowserBackend) ensure() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		logging.SandboxWarn("stale browser connection detected, reconnecting")
		_ = b.browser.Close()
		b.browser = nil
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		ctx, cancel := context.WithTimeout(context.Background(), b.launchTimeout)
		defer cancel()

		l := launcher.New().Context(ctx).Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		for _, raw := range b.cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
		b.launcher = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	logging.Sandbox("browser connected: %s", controlURL)
	return browser, nil
}

// Start implements Backend.
func (b *BrowserBackend) Start(ctx context.Context, payload string, post PostFunc) (Instance, error) {
	browser, err := b.ensure()
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	inst := &browserInstance{context: incognito}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	inst.page = page

	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("enable runtime: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: preview.BindingName}).Call(page); err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("add binding: %w", err)
	}

	// Subscribe before the document loads so early console calls are seen.
	wait := page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == preview.BindingName {
			post([]byte(e.Payload))
		}
	})
	go wait()

	if err := page.SetDocumentContent(payload); err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("set document content: %w", err)
	}
	return inst, nil
}

// Close implements Backend.
func (b *BrowserBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
		b.launcher = nil
	}
	return err
}

type browserInstance struct {
	context *rod.Browser
	page    *rod.Page
}

// Close closes the page and disposes its incognito context.
func (i *browserInstance) Close() error {
	var err error
	if i.page != nil {
		err = i.page.Close()
	}
	if cerr := i.context.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
