package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"fiesta/internal/config"
	"fiesta/internal/logging"
)

// maxLine caps one wire message from a runner.
const maxLine = 1 << 20

// ProcessBackend runs each payload in an external runner. The payload is
// written to the runner's stdin; every stdout line is one wire message and
// every stderr line is reported at error severity.
type ProcessBackend struct {
	cfg config.ProcessConfig
}

// NewProcessBackend creates a runner backend.
func NewProcessBackend(cfg config.ProcessConfig) *ProcessBackend {
	return &ProcessBackend{cfg: cfg}
}

// Name implements Backend.
func (b *ProcessBackend) Name() string { return "process" }

// Close implements Backend. Runners are per context, so nothing is shared.
func (b *ProcessBackend) Close() error { return nil }

// Start implements Backend.
func (b *ProcessBackend) Start(ctx context.Context, payload string, post PostFunc) (Instance, error) {
	if len(b.cfg.Command) == 0 {
		return nil, fmt.Errorf("no runner command configured")
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, b.cfg.Command[0], b.cfg.Command[1:]...)
	cmd.Dir = b.cfg.Dir
	if len(b.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), b.cfg.Env...)
	}
	cmd.Stdin = strings.NewReader(payload)
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	logging.SandboxDebug("starting runner: %s", strings.Join(b.cfg.Command, " "))
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start runner: %w", err)
	}

	inst := &processInstance{cancel: cancel, done: make(chan struct{})}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		scanLines(stdout, func(line string) { post([]byte(line)) }, func() {
			post(EncodeWire("error", "runner output line too long"))
		})
	}()
	go func() {
		defer readers.Done()
		scanLines(stderr, func(line string) { post(EncodeWire("error", line)) }, func() {
			post(EncodeWire("error", "runner error line too long"))
		})
	}()

	go func() {
		defer close(inst.done)
		readers.Wait()
		err := cmd.Wait()
		if err != nil && procCtx.Err() == nil {
			post(EncodeWire("error", fmt.Sprintf("runner exited: %v", err)))
		}
		logging.SandboxDebug("runner finished: %v", err)
	}()

	return inst, nil
}

type processInstance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close kills the runner and waits for its readers to drain.
func (p *processInstance) Close() error {
	p.cancel()
	<-p.done
	return nil
}

// scanLines calls fn for each non-empty line of r. A line longer than
// maxLine is skipped and reported through tooLong; reading continues with
// the next line so later output still arrives.
func scanLines(r io.Reader, fn func(string), tooLong func()) {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	skipping := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !skipping {
			line = append(line, chunk...)
			if len(line) > maxLine {
				skipping = true
				line = line[:0]
				tooLong()
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if !skipping {
			if text := strings.TrimRight(string(line), "\r\n"); text != "" {
				fn(text)
			}
		}
		skipping = false
		line = line[:0]
		if err != nil {
			return
		}
	}
}
