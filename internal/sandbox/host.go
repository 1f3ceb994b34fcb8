package sandbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fiesta/internal/logging"
	"fiesta/internal/workspace"
)

// State is the host lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// DefaultInboundBuffer bounds the inbound channel when no size is configured.
const DefaultInboundBuffer = 256

// Stats counts inbound traffic.
type Stats struct {
	Delivered uint64
	Dropped   uint64 // channel full
	Stale     uint64 // posted by a torn-down context
}

// Host owns the isolated context lifecycle: Idle -> Running -> Idle.
type Host struct {
	backend Backend

	mu       sync.Mutex
	state    State
	current  Instance
	cancel   context.CancelFunc
	token    workspace.RefreshToken
	hasToken bool

	generation atomic.Uint64

	// postMu guards inbound against close while backends post.
	postMu  sync.RWMutex
	closed  bool
	inbound chan Envelope

	delivered atomic.Uint64
	dropped   atomic.Uint64
	stale     atomic.Uint64
}

// NewHost creates an idle host. buffer bounds the inbound channel.
func NewHost(backend Backend, buffer int) *Host {
	if buffer <= 0 {
		buffer = DefaultInboundBuffer
	}
	return &Host{
		backend: backend,
		inbound: make(chan Envelope, buffer),
	}
}

// Backend returns the backend name.
func (h *Host) Backend() string { return h.backend.Name() }

// Messages returns the inbound channel. It is closed by Close.
func (h *Host) Messages() <-chan Envelope { return h.inbound }

// Generation returns the generation of the live context, or of the most
// recent teardown when idle.
func (h *Host) Generation() uint64 { return h.generation.Load() }

// State returns the lifecycle state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Stats returns inbound counters.
func (h *Host) Stats() Stats {
	return Stats{
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
		Stale:     h.stale.Load(),
	}
}

// Activate replaces the running context with a new one executing payload.
// It returns the new generation once the context is installed; it does not
// wait for the payload to finish.
func (h *Host) Activate(ctx context.Context, payload string) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activateLocked(ctx, payload)
}

// Sync activates a rebuilt payload only when token differs from the token of
// the running context. It reports whether a rebuild happened.
func (h *Host) Sync(ctx context.Context, token workspace.RefreshToken, build func() string) (uint64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateRunning && h.hasToken && h.token == token {
		return h.generation.Load(), false, nil
	}
	gen, err := h.activateLocked(ctx, build())
	if err != nil {
		return 0, false, err
	}
	h.token = token
	h.hasToken = true
	return gen, true, nil
}

func (h *Host) activateLocked(ctx context.Context, payload string) (uint64, error) {
	if h.isClosed() {
		return 0, ErrClosed
	}

	timer := logging.StartTimer(logging.CategorySandbox, "activate "+h.backend.Name())
	defer timer.StopWithThreshold(5 * time.Second)

	h.teardownLocked()
	gen := h.generation.Add(1)

	// The context outlives the caller's request; teardown cancels it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	inst, err := h.backend.Start(runCtx, payload, h.poster(gen))
	if err != nil {
		cancel()
		logging.SandboxWarn("backend %s failed to start generation %d: %v", h.backend.Name(), gen, err)
		return 0, fmt.Errorf("start %s context: %w", h.backend.Name(), err)
	}

	h.current = inst
	h.cancel = cancel
	h.state = StateRunning
	logging.Get(logging.CategorySandbox).With("backend", h.backend.Name(), "generation", gen).Infof("context running (%d bytes)", len(payload))
	return gen, nil
}

// Deactivate tears down the running context. Messages it sends afterwards
// are discarded.
func (h *Host) Deactivate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateRunning {
		h.teardownLocked()
		h.generation.Add(1)
	}
}

func (h *Host) teardownLocked() {
	if h.current == nil {
		return
	}
	h.cancel()
	if err := h.current.Close(); err != nil {
		logging.SandboxWarn("teardown of generation %d: %v", h.generation.Load(), err)
	}
	h.current = nil
	h.cancel = nil
	h.state = StateIdle
	h.hasToken = false
}

// Close tears down the context, releases the backend and closes Messages.
func (h *Host) Close() error {
	h.Deactivate()

	h.postMu.Lock()
	if h.closed {
		h.postMu.Unlock()
		return nil
	}
	h.closed = true
	close(h.inbound)
	h.postMu.Unlock()

	return h.backend.Close()
}

func (h *Host) isClosed() bool {
	h.postMu.RLock()
	defer h.postMu.RUnlock()
	return h.closed
}

func (h *Host) poster(gen uint64) PostFunc {
	return func(payload []byte) {
		if h.generation.Load() != gen {
			h.stale.Add(1)
			return
		}
		h.postMu.RLock()
		defer h.postMu.RUnlock()
		if h.closed {
			return
		}
		select {
		case h.inbound <- Envelope{Generation: gen, Payload: payload, Received: time.Now()}:
			h.delivered.Add(1)
		default:
			h.dropped.Add(1)
			logging.SandboxDebug("inbound buffer full, dropped message from generation %d", gen)
		}
	}
}
