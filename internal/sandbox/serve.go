package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"fiesta/internal/config"
	"fiesta/internal/logging"
)

// bootstrapTemplate installs the bridge function for pages opened in an
// ordinary browser. Diagnostics are beaconed to the endpoint of the context
// that served the page, and the page reloads once a newer context replaces it.
const bootstrapTemplate = `<script>
(function () {
  var id = "%s";
  window.__fiestaBridge = function (json) {
    navigator.sendBeacon("/__fiesta/log/" + id, json);
  };
  setInterval(function () {
    fetch("/__fiesta/current", { cache: "no-store" })
      .then(function (r) { return r.text(); })
      .then(function (cur) { if (cur && cur !== id) location.reload(); })
      .catch(function () {});
  }, 1000);
})();
</script>`

// ServeBackend publishes the live context over HTTP so any browser can open
// it. Each context gets its own log endpoint; posts to an endpoint that is no
// longer current are refused.
type ServeBackend struct {
	addr   string
	router chi.Router

	mu       sync.Mutex
	current  *serveInstance
	server   *http.Server
	listener net.Listener
}

type serveInstance struct {
	backend *ServeBackend
	id      string
	payload string
	post    PostFunc
}

// NewServeBackend creates an HTTP preview backend. The listener is opened on
// the first Start.
func NewServeBackend(cfg config.ServeConfig) *ServeBackend {
	b := &ServeBackend{addr: cfg.Addr}
	if b.addr == "" {
		b.addr = config.DefaultServeAddr
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Get("/", b.servePage)
	r.Get("/__fiesta/current", b.serveCurrent)
	r.Post("/__fiesta/log/{id}", b.receive)
	b.router = r
	return b
}

// Name implements Backend.
func (b *ServeBackend) Name() string { return "serve" }

// Handler exposes the preview routes.
func (b *ServeBackend) Handler() http.Handler { return b.router }

// URL returns the preview address, or "" before the first Start.
func (b *ServeBackend) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return "http://" + b.listener.Addr().String() + "/"
}

func (b *ServeBackend) ensure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.server != nil {
		return nil
	}
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", b.addr, err)
	}
	srv := &http.Server{Handler: b.router, ReadHeaderTimeout: 5 * time.Second}
	b.listener = ln
	b.server = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.SandboxWarn("preview server stopped: %v", err)
		}
	}()
	logging.Sandbox("preview served at http://%s/", ln.Addr())
	return nil
}

// Start implements Backend.
func (b *ServeBackend) Start(ctx context.Context, payload string, post PostFunc) (Instance, error) {
	if err := b.ensure(); err != nil {
		return nil, err
	}
	inst := &serveInstance{backend: b, id: uuid.NewString(), payload: payload, post: post}
	b.mu.Lock()
	b.current = inst
	b.mu.Unlock()
	return inst, nil
}

// Close implements Backend.
func (b *ServeBackend) Close() error {
	b.mu.Lock()
	srv := b.server
	b.server = nil
	b.listener = nil
	b.current = nil
	b.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (i *serveInstance) Close() error {
	i.backend.mu.Lock()
	defer i.backend.mu.Unlock()
	if i.backend.current == i {
		i.backend.current = nil
	}
	return nil
}

func (b *ServeBackend) live() *serveInstance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *ServeBackend) servePage(w http.ResponseWriter, r *http.Request) {
	inst := b.live()
	if inst == nil {
		http.Error(w, "no preview running", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, injectBootstrap(inst.payload, inst.id))
}

func (b *ServeBackend) serveCurrent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if inst := b.live(); inst != nil {
		_, _ = io.WriteString(w, inst.id)
	}
}

func (b *ServeBackend) receive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst := b.live()
	if inst == nil || inst.id != id {
		logging.SandboxDebug("refusing diagnostic for retired context %s", id)
		w.WriteHeader(http.StatusGone)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLine))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	inst.post(body)
	w.WriteHeader(http.StatusNoContent)
}

// injectBootstrap places the bootstrap script first in the head so the
// bridge exists before the shim runs.
func injectBootstrap(payload, id string) string {
	boot := fmt.Sprintf(bootstrapTemplate, id)
	if strings.Contains(payload, "<head>") {
		return strings.Replace(payload, "<head>", "<head>\n"+boot, 1)
	}
	return boot + "\n" + payload
}
