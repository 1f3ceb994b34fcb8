package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"fiesta/internal/logging"
)

// InterpBackend runs Go documents in the yaegi interpreter. Only allow-listed
// stdlib packages are importable; stdout lines are reported at info severity,
// stderr lines, panics and evaluation errors at error severity.
type InterpBackend struct {
	allowed map[string]bool
	symbols interp.Exports
}

// NewInterpBackend creates an interpreter backend restricted to allowed.
func NewInterpBackend(allowed []string) *InterpBackend {
	b := &InterpBackend{
		allowed: make(map[string]bool, len(allowed)),
		symbols: make(interp.Exports),
	}
	for _, pkg := range allowed {
		b.allowed[pkg] = true
	}
	// stdlib.Symbols is keyed "import/path/name", e.g. "encoding/json/json".
	for key, syms := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if b.allowed[key[:idx]] {
			b.symbols[key] = syms
		}
	}
	return b
}

// Name implements Backend.
func (b *InterpBackend) Name() string { return "interp" }

// Close implements Backend.
func (b *InterpBackend) Close() error { return nil }

// CheckImports parses src and rejects imports outside the allow-list.
func (b *InterpBackend) CheckImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "main.go", src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	var forbidden []string
	for _, spec := range f.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return fmt.Errorf("bad import %s: %w", spec.Path.Value, err)
		}
		if !b.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		slices.Sort(forbidden)
		return fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

// CheckProgram runs CheckImports and then rejects constructs that run
// interpreted code on a goroutine of its own: go statements and
// time.AfterFunc callbacks. A panic there cannot be recovered by the
// interpreter and would take the whole process down.
func (b *InterpBackend) CheckProgram(src string) error {
	if err := b.CheckImports(src); err != nil {
		return err
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "main.go", src, parser.SkipObjectResolution)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	timeNames := map[string]bool{}
	dotTime := false
	for _, imp := range f.Imports {
		if imp.Path.Value != `"time"` {
			continue
		}
		switch {
		case imp.Name == nil:
			timeNames["time"] = true
		case imp.Name.Name == ".":
			dotTime = true
		default:
			timeNames[imp.Name.Name] = true
		}
	}

	var found error
	ast.Inspect(f, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.GoStmt:
			found = fmt.Errorf("line %d: go statements are not supported", fset.Position(n.Pos()).Line)
		case *ast.SelectorExpr:
			if x, ok := n.X.(*ast.Ident); ok && timeNames[x.Name] && n.Sel.Name == "AfterFunc" {
				found = fmt.Errorf("line %d: time.AfterFunc is not supported", fset.Position(n.Pos()).Line)
			}
		case *ast.Ident:
			if dotTime && n.Name == "AfterFunc" {
				found = fmt.Errorf("line %d: time.AfterFunc is not supported", fset.Position(n.Pos()).Line)
			}
		}
		return true
	})
	return found
}

// Start implements Backend. Rejected or broken programs still produce a
// running context that reports the failure, mirroring how the browser
// surfaces script errors.
func (b *InterpBackend) Start(ctx context.Context, payload string, post PostFunc) (Instance, error) {
	evalCtx, cancel := context.WithCancel(ctx)
	inst := &interpInstance{cancel: cancel, done: make(chan struct{})}

	stdout := &lineWriter{logType: "info", post: post}
	stderr := &lineWriter{logType: "error", post: post}

	go func() {
		defer close(inst.done)
		defer stdout.Flush()
		defer stderr.Flush()
		defer func() {
			if r := recover(); r != nil {
				post(EncodeWire("error", fmt.Sprintf("panic: %v", r)))
			}
		}()

		if err := b.CheckProgram(payload); err != nil {
			post(EncodeWire("error", err.Error()))
			return
		}

		i := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
		if err := i.Use(b.symbols); err != nil {
			post(EncodeWire("error", fmt.Sprintf("load stdlib: %v", err)))
			return
		}
		if _, err := i.EvalWithContext(evalCtx, payload); err != nil && evalCtx.Err() == nil {
			post(EncodeWire("error", err.Error()))
		}
		logging.SandboxDebug("interpreted program finished")
	}()

	return inst, nil
}

type interpInstance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close cancels evaluation. A program stuck outside the interpreter's
// cancellation points is abandoned, not waited for.
func (p *interpInstance) Close() error {
	p.cancel()
	return nil
}

// Wait blocks until the program has finished or was abandoned by the interpreter.
func (p *interpInstance) Wait() { <-p.done }

// lineWriter turns a byte stream into one wire message per line.
type lineWriter struct {
	mu      sync.Mutex
	logType string
	post    PostFunc
	buf     bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	if line == "" {
		return
	}
	w.post(EncodeWire(w.logType, line))
}
