package sandbox

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fiesta/internal/config"
	"fiesta/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend records every started context and hands the test its poster.
type fakeBackend struct {
	mu      sync.Mutex
	started []*fakeInstance
	fail    error
}

type fakeInstance struct {
	payload string
	post    PostFunc
	closed  bool
}

func (f *fakeInstance) Close() error {
	f.closed = true
	return nil
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) Start(ctx context.Context, payload string, post PostFunc) (Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	inst := &fakeInstance{payload: payload, post: post}
	f.started = append(f.started, inst)
	return inst, nil
}

func (f *fakeBackend) live() []*fakeInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeInstance
	for _, inst := range f.started {
		if !inst.closed {
			out = append(out, inst)
		}
	}
	return out
}

func drain(h *Host) []Envelope {
	var out []Envelope
	for {
		select {
		case env, ok := <-h.Messages():
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestHost_SingleActiveContext(t *testing.T) {
	fb := &fakeBackend{}
	h := NewHost(fb, 8)
	defer h.Close()

	ctx := context.Background()
	g1, err := h.Activate(ctx, "one")
	require.NoError(t, err)
	g2, err := h.Activate(ctx, "two")
	require.NoError(t, err)

	assert.Greater(t, g2, g1)
	assert.Equal(t, g2, h.Generation())
	assert.Equal(t, StateRunning, h.State())

	live := fb.live()
	require.Len(t, live, 1)
	assert.Equal(t, "two", live[0].payload)
}

func TestHost_DiscardsLateMessagesFromTornDownContext(t *testing.T) {
	fb := &fakeBackend{}
	h := NewHost(fb, 8)
	defer h.Close()

	ctx := context.Background()
	_, err := h.Activate(ctx, "one")
	require.NoError(t, err)
	first := fb.started[0]

	g2, err := h.Activate(ctx, "two")
	require.NoError(t, err)
	second := fb.started[1]

	first.post([]byte("late"))
	second.post([]byte("fresh"))

	got := drain(h)
	require.Len(t, got, 1)
	assert.Equal(t, g2, got[0].Generation)
	assert.Equal(t, "fresh", string(got[0].Payload))
	assert.Equal(t, uint64(1), h.Stats().Stale)
}

func TestHost_DeactivateStopsListening(t *testing.T) {
	fb := &fakeBackend{}
	h := NewHost(fb, 8)
	defer h.Close()

	_, err := h.Activate(context.Background(), "one")
	require.NoError(t, err)
	inst := fb.started[0]

	h.Deactivate()
	assert.Equal(t, StateIdle, h.State())
	assert.True(t, inst.closed)

	inst.post([]byte("after"))
	assert.Empty(t, drain(h))
}

func TestHost_OverflowIsDropped(t *testing.T) {
	fb := &fakeBackend{}
	h := NewHost(fb, 2)
	defer h.Close()

	_, err := h.Activate(context.Background(), "one")
	require.NoError(t, err)
	post := fb.started[0].post
	for i := 0; i < 5; i++ {
		post([]byte("x"))
	}

	assert.Len(t, drain(h), 2)
	stats := h.Stats()
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Equal(t, uint64(3), stats.Dropped)
}

func TestHost_SyncSkipsEqualToken(t *testing.T) {
	fb := &fakeBackend{}
	h := NewHost(fb, 8)
	defer h.Close()

	builds := 0
	build := func() string {
		builds++
		return "payload"
	}
	ctx := context.Background()

	_, rebuilt, err := h.Sync(ctx, workspace.RefreshToken(1), build)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	_, rebuilt, err = h.Sync(ctx, workspace.RefreshToken(1), build)
	require.NoError(t, err)
	assert.False(t, rebuilt)

	_, rebuilt, err = h.Sync(ctx, workspace.RefreshToken(2), build)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, 2, builds)

	h.Deactivate()
	_, rebuilt, err = h.Sync(ctx, workspace.RefreshToken(2), build)
	require.NoError(t, err)
	assert.True(t, rebuilt, "an idle host always rebuilds")
}

func TestHost_StartFailureLeavesIdle(t *testing.T) {
	fb := &fakeBackend{fail: assert.AnError}
	h := NewHost(fb, 8)
	defer h.Close()

	_, err := h.Activate(context.Background(), "x")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StateIdle, h.State())
}

func TestHost_Close(t *testing.T) {
	fb := &fakeBackend{}
	h := NewHost(fb, 8)

	_, err := h.Activate(context.Background(), "one")
	require.NoError(t, err)
	post := fb.started[0].post

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	post([]byte("ignored"))
	_, ok := <-h.Messages()
	assert.False(t, ok)

	_, err = h.Activate(context.Background(), "two")
	assert.ErrorIs(t, err, ErrClosed)
}

func decodeAll(t *testing.T, envs []Envelope) []Wire {
	t.Helper()
	out := make([]Wire, 0, len(envs))
	for _, env := range envs {
		var w Wire
		require.NoError(t, json.Unmarshal(env.Payload, &w), string(env.Payload))
		out = append(out, w)
	}
	return out
}

func collect(t *testing.T, h *Host, n int) []Envelope {
	t.Helper()
	var out []Envelope
	timeout := time.After(10 * time.Second)
	for len(out) < n {
		select {
		case env := <-h.Messages():
			out = append(out, env)
		case <-timeout:
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}

func TestProcessBackend_StreamsLines(t *testing.T) {
	script := `cat >/dev/null; ` +
		`echo '{"type":"CONSOLE_LOG","logType":"info","message":"hello"}'; ` +
		`echo '{"type":"CONSOLE_LOG","logType":"warn","message":"careful"}'; ` +
		`echo boom >&2`
	h := NewHost(NewProcessBackend(config.ProcessConfig{Command: []string{"sh", "-c", script}}), 8)
	defer h.Close()

	_, err := h.Activate(context.Background(), "<html></html>")
	require.NoError(t, err)

	wires := decodeAll(t, collect(t, h, 3))
	var stdout []Wire
	var stderr []Wire
	for _, w := range wires {
		if w.LogType == "error" {
			stderr = append(stderr, w)
		} else {
			stdout = append(stdout, w)
		}
	}
	require.Len(t, stdout, 2)
	assert.Equal(t, "hello", stdout[0].Message)
	assert.Equal(t, "careful", stdout[1].Message)
	require.Len(t, stderr, 1)
	assert.Equal(t, Wire{Type: "CONSOLE_LOG", LogType: "error", Message: "boom"}, stderr[0])
}

func TestScanLines_SkipsOversizedLine(t *testing.T) {
	in := "first\r\n" + strings.Repeat("a", maxLine+10) + "\n\nafter\nlast"
	var lines []string
	tooLong := 0
	scanLines(strings.NewReader(in), func(l string) { lines = append(lines, l) }, func() { tooLong++ })

	assert.Equal(t, []string{"first", "after", "last"}, lines)
	assert.Equal(t, 1, tooLong)
}

func TestProcessBackend_OversizedLineKeepsReading(t *testing.T) {
	script := `cat >/dev/null; ` +
		`head -c 1100000 /dev/zero | tr '\0' a; echo; ` +
		`echo '{"type":"CONSOLE_LOG","logType":"info","message":"after"}'`
	h := NewHost(NewProcessBackend(config.ProcessConfig{Command: []string{"sh", "-c", script}}), 8)
	defer h.Close()

	_, err := h.Activate(context.Background(), "<html></html>")
	require.NoError(t, err)

	wires := decodeAll(t, collect(t, h, 2))
	assert.Equal(t, Wire{Type: "CONSOLE_LOG", LogType: "error", Message: "runner output line too long"}, wires[0])
	assert.Equal(t, Wire{Type: "CONSOLE_LOG", LogType: "info", Message: "after"}, wires[1])
}

func TestProcessBackend_MissingCommand(t *testing.T) {
	_, err := NewProcessBackend(config.ProcessConfig{}).Start(context.Background(), "", func([]byte) {})
	assert.Error(t, err)
}

func TestInterpBackend_CheckImports(t *testing.T) {
	b := NewInterpBackend([]string{"fmt", "strings"})

	assert.NoError(t, b.CheckImports("package main\nimport (\n\"fmt\"\n\"strings\"\n)\nfunc main(){}"))

	err := b.CheckImports("package main\nimport (\n\"os/exec\"\n\"fmt\"\n\"net\"\n)\nfunc main(){}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net, os/exec")

	assert.Error(t, b.CheckImports("not go"))
}

func runInterp(t *testing.T, src string) []Wire {
	t.Helper()
	var mu sync.Mutex
	var out []Wire
	post := func(p []byte) {
		var w Wire
		assert.NoError(t, json.Unmarshal(p, &w))
		mu.Lock()
		out = append(out, w)
		mu.Unlock()
	}

	b := NewInterpBackend(config.DefaultInterpPackages())
	inst, err := b.Start(context.Background(), src, post)
	require.NoError(t, err)
	inst.(*interpInstance).Wait()
	require.NoError(t, inst.Close())

	mu.Lock()
	defer mu.Unlock()
	return out
}

func TestInterpBackend_Stdout(t *testing.T) {
	out := runInterp(t, `package main

import "fmt"

func main() {
	fmt.Println("first")
	fmt.Print("second")
}
`)
	require.Len(t, out, 2)
	assert.Equal(t, Wire{Type: "CONSOLE_LOG", LogType: "info", Message: "first"}, out[0])
	assert.Equal(t, "second", out[1].Message)
}

func TestInterpBackend_ForbiddenImport(t *testing.T) {
	out := runInterp(t, "package main\n\nimport \"os\"\n\nfunc main() { os.Exit(1) }\n")
	require.Len(t, out, 1)
	assert.Equal(t, "error", out[0].LogType)
	assert.Contains(t, out[0].Message, "forbidden imports: os")
}

func TestInterpBackend_CheckProgram(t *testing.T) {
	b := NewInterpBackend(config.DefaultInterpPackages())

	assert.NoError(t, b.CheckProgram("package main\n\nimport \"time\"\n\nfunc main() { time.Sleep(time.Millisecond) }\n"))

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"go statement", "package main\n\nfunc main() {\n\tgo func() {}()\n}\n", "line 4: go statements"},
		{"after func", "package main\n\nimport \"time\"\n\nfunc main() { time.AfterFunc(0, func() {}) }\n", "time.AfterFunc"},
		{"aliased after func", "package main\n\nimport t \"time\"\n\nfunc main() { t.AfterFunc(0, func() {}) }\n", "time.AfterFunc"},
		{"dot after func", "package main\n\nimport . \"time\"\n\nfunc main() { AfterFunc(0, func() {}) }\n", "time.AfterFunc"},
		{"forbidden import", "package main\n\nimport \"os\"\n\nfunc main() { go os.Exit(1) }\n", "forbidden imports: os"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.CheckProgram(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInterpBackend_GoroutinePanicIsRejected(t *testing.T) {
	out := runInterp(t, `package main

import "time"

func main() {
	go func() { panic("boom") }()
	time.Sleep(200 * time.Millisecond)
}
`)
	require.Len(t, out, 1)
	assert.Equal(t, "error", out[0].LogType)
	assert.Contains(t, out[0].Message, "go statements are not supported")

	// The backend stays usable afterwards.
	out = runInterp(t, "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"still here\") }\n")
	require.Len(t, out, 1)
	assert.Equal(t, "still here", out[0].Message)
}

func TestInterpBackend_EvalError(t *testing.T) {
	out := runInterp(t, "package main\n\nfunc main() { undefinedCall() }\n")
	require.NotEmpty(t, out)
	assert.Equal(t, "error", out[len(out)-1].LogType)
}

func TestLineWriter(t *testing.T) {
	var got []string
	w := &lineWriter{logType: "info", post: func(p []byte) {
		var m Wire
		_ = json.Unmarshal(p, &m)
		got = append(got, m.Message)
	}}
	_, _ = w.Write([]byte("a\nb"))
	_, _ = w.Write([]byte("c\r\n\n"))
	_, _ = w.Write([]byte("tail"))
	w.Flush()
	assert.Equal(t, []string{"a", "bc", "tail"}, got)
}

func TestNewBackend(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Sandbox.Backend = "process"
	b, err := NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, "process", b.Name())

	cfg.Sandbox.Backend = "browser"
	b, err = NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, "browser", b.Name())

	cfg.Sandbox.Backend = "serve"
	b, err = NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, "serve", b.Name())

	cfg.Sandbox.Backend = "none"
	_, err = NewBackend(cfg)
	assert.ErrorIs(t, err, ErrNoBackend)

	cfg.Sandbox.Backend = "iframe"
	_, err = NewBackend(cfg)
	assert.Error(t, err)

	h, err := NewInterpHost(cfg)
	require.NoError(t, err)
	assert.Equal(t, "interp", h.Backend())
	require.NoError(t, h.Close())

	cfg.Sandbox.Interp.Enabled = false
	_, err = NewInterpHost(cfg)
	assert.ErrorIs(t, err, ErrNoBackend)
}
