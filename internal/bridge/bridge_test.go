package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fiesta/internal/sandbox"
	"fiesta/internal/terminal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	ch  chan sandbox.Envelope
	gen atomic.Uint64
}

func newFakeSource() *fakeSource {
	s := &fakeSource{ch: make(chan sandbox.Envelope, 16)}
	s.gen.Store(1)
	return s
}

func (s *fakeSource) Messages() <-chan sandbox.Envelope { return s.ch }
func (s *fakeSource) Generation() uint64                { return s.gen.Load() }

type recordingSink struct {
	mu      sync.Mutex
	entries []terminal.Entry
}

func (r *recordingSink) Append(e terminal.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingSink) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, string(e.Severity)+":"+e.Message)
	}
	return out
}

func env(gen uint64, payload string) sandbox.Envelope {
	return sandbox.Envelope{Generation: gen, Payload: []byte(payload), Received: time.Now()}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
		sev     terminal.Severity
	}{
		{"info", `{"type":"CONSOLE_LOG","logType":"info","message":"hi"}`, true, terminal.Info},
		{"warn", `{"type":"CONSOLE_LOG","logType":"warn","message":"hi"}`, true, terminal.Warn},
		{"error", `{"type":"CONSOLE_LOG","logType":"error","message":"hi"}`, true, terminal.Error},
		{"untagged", `{"logType":"info","message":"hi"}`, false, ""},
		{"wrong tag", `{"type":"SOMETHING","logType":"info","message":"hi"}`, false, ""},
		{"host severity", `{"type":"CONSOLE_LOG","logType":"success","message":"hi"}`, false, ""},
		{"not json", `console.log`, false, ""},
		{"empty", ``, false, ""},
		{"mixed case keys", `{"TYPE":"CONSOLE_LOG","LogType":"warn","MESSAGE":"hi"}`, false, ""},
		{"mixed case type only", `{"Type":"CONSOLE_LOG","logType":"warn","message":"hi"}`, false, ""},
		{"missing message", `{"type":"CONSOLE_LOG","logType":"info"}`, false, ""},
		{"non-string message", `{"type":"CONSOLE_LOG","logType":"info","message":{"a":1}}`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sev, msg, ok := Decode([]byte(tt.payload))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.sev, sev)
				assert.Equal(t, "hi", msg)
			}
		})
	}
}

func TestBridge_Authentication(t *testing.T) {
	src := newFakeSource()
	sink := &recordingSink{}
	b := New(src, sink)

	assert.False(t, b.Deliver(env(1, `{"logType":"error","message":"spoof"}`)))
	assert.False(t, b.Deliver(env(1, `{"TYPE":"CONSOLE_LOG","LogType":"warn","MESSAGE":"spoof"}`)))
	assert.Empty(t, sink.messages())
	assert.Equal(t, uint64(2), b.Stats().Rejected)
}

func TestBridge_DiscardsStaleGenerations(t *testing.T) {
	src := newFakeSource()
	sink := &recordingSink{}
	b := New(src, sink)

	// Queued by generation 1, drained after generation 2 took over.
	src.gen.Store(2)
	assert.False(t, b.Deliver(env(1, `{"type":"CONSOLE_LOG","logType":"info","message":"old"}`)))
	assert.True(t, b.Deliver(env(2, `{"type":"CONSOLE_LOG","logType":"info","message":"new"}`)))

	assert.Equal(t, []string{"info:new"}, sink.messages())
	assert.Equal(t, Stats{Accepted: 1, Stale: 1}, b.Stats())
}

func TestBridge_RunPreservesOrder(t *testing.T) {
	src := newFakeSource()
	sink := &recordingSink{}
	b := New(src, sink)

	src.ch <- env(1, `{"type":"CONSOLE_LOG","logType":"info","message":"1"}`)
	src.ch <- env(1, `{"type":"CONSOLE_LOG","logType":"warn","message":"2"}`)
	src.ch <- env(1, `garbage`)
	src.ch <- env(1, `{"type":"CONSOLE_LOG","logType":"error","message":"3"}`)
	close(src.ch)

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, []string{"info:1", "warn:2", "error:3"}, sink.messages())

	ids := map[string]bool{}
	for _, e := range sink.entries {
		assert.False(t, ids[e.ID], "duplicate id")
		ids[e.ID] = true
	}
}

func TestBridge_RunStopsOnCancel(t *testing.T) {
	src := newFakeSource()
	b := New(src, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

// Exercises the host and bridge together: two quick activations leave one
// live context and nothing from the first reaches the terminal.
type scriptedBackend struct {
	mu    sync.Mutex
	posts []sandbox.PostFunc
}

type nopInstance struct{}

func (nopInstance) Close() error { return nil }

func (s *scriptedBackend) Name() string { return "scripted" }
func (s *scriptedBackend) Close() error { return nil }
func (s *scriptedBackend) Start(_ context.Context, _ string, post sandbox.PostFunc) (sandbox.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, post)
	return nopInstance{}, nil
}

func TestBridge_WithHost(t *testing.T) {
	backend := &scriptedBackend{}
	host := sandbox.NewHost(backend, 16)
	term := terminal.New(nil)
	b := New(host, term)

	ctx := context.Background()
	_, err := host.Activate(ctx, "first")
	require.NoError(t, err)
	backend.posts[0](sandbox.EncodeWire("info", "queued by first"))

	_, err = host.Activate(ctx, "second")
	require.NoError(t, err)
	backend.posts[0](sandbox.EncodeWire("info", "late from first"))
	backend.posts[1](sandbox.EncodeWire("warn", "from second"))

	for drained := false; !drained; {
		select {
		case e := <-host.Messages():
			b.Deliver(e)
		default:
			drained = true
		}
	}
	require.NoError(t, host.Close())

	entries := term.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, terminal.Warn, entries[0].Severity)
	assert.Equal(t, "from second", entries[0].Message)
}
