// Package studio is the workspace controller. It owns the document
// collection, dependency declarations, refresh token, chat history and
// terminal, and serialises every operation on them.
package studio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"fiesta/internal/assist"
	"fiesta/internal/logging"
	"fiesta/internal/preview"
	"fiesta/internal/router"
	"fiesta/internal/sandbox"
	"fiesta/internal/store"
	"fiesta/internal/terminal"
	"fiesta/internal/watch"
	"fiesta/internal/workspace"
)

// ErrNoActiveDocument is returned by edits when no document is selected.
var ErrNoActiveDocument = errors.New("no active document")

// Options wires a studio to its collaborators. Everything except Terminal
// is optional.
type Options struct {
	Composer *preview.Composer
	Preview  *sandbox.Host // isolated context for the composed page
	Interp   *sandbox.Host // isolated context for main.go
	Terminal *terminal.Terminal
	Router   *router.Router
	AI       assist.Completer
	Store    *store.Store

	// AutoRefresh rebuilds the preview after every mutation.
	AutoRefresh bool
	// ProjectDir, when set, receives every document mutation on disk.
	ProjectDir string
}

// Studio is the single owner of workspace state.
type Studio struct {
	opts Options
	term *terminal.Terminal

	mu      sync.Mutex
	files   *workspace.Collection
	deps    *workspace.Dependencies
	active  string
	token   workspace.RefreshToken
	history []assist.Turn
	persona bool
}

// New creates a studio from a workspace snapshot and prior chat history.
func New(opts Options, snap workspace.Snapshot, history []assist.Turn) *Studio {
	if opts.Terminal == nil {
		opts.Terminal = terminal.New(nil)
	}
	if opts.Composer == nil {
		opts.Composer = preview.NewComposer("")
	}
	if opts.Router == nil {
		opts.Router = router.New(nil)
	}
	files := snap.Files
	if files == nil {
		files = workspace.StarterProject()
	}
	deps := snap.Deps
	if deps == nil {
		deps = workspace.NewDependencies()
	}
	active := snap.Active
	if !files.Has(active) {
		active = files.First()
	}
	return &Studio{
		opts:    opts,
		term:    opts.Terminal,
		files:   files,
		deps:    deps,
		active:  active,
		history: slices.Clone(history),
	}
}

// Terminal returns the studio's terminal.
func (s *Studio) Terminal() *terminal.Terminal { return s.term }

// Files returns a snapshot of the documents.
func (s *Studio) Files() *workspace.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files.Clone()
}

// Dependencies returns the declared dependencies in order.
func (s *Studio) Dependencies() []workspace.Dependency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.List()
}

// Active returns the active document name, or "".
func (s *Studio) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Token returns the current refresh token.
func (s *Studio) Token() workspace.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// History returns the chat history.
func (s *Studio) History() []assist.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Persona reports whether fiesta mode is on.
func (s *Studio) Persona() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SetPersona toggles fiesta mode.
func (s *Studio) SetPersona(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = on
}

// Snapshot returns the persisted form of the workspace.
func (s *Studio) Snapshot() workspace.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Studio) snapshotLocked() workspace.Snapshot {
	return workspace.Snapshot{Files: s.files.Clone(), Deps: s.deps.Clone(), Active: s.active}
}

// Compose returns the payload for the current workspace.
func (s *Studio) Compose() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Composer.Compose(s.files, s.deps.List())
}

// SetActive selects a document.
func (s *Studio) SetActive(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.files.Has(name) {
		return fmt.Errorf("select %s: %w", name, workspace.ErrNotFound)
	}
	s.active = name
	logging.StudioDebug("active document is now %s", name)
	s.persistLocked()
	return nil
}

// Edit replaces the content of the active document.
func (s *Studio) Edit(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return ErrNoActiveDocument
	}
	_, err := s.editLocked(ctx, s.active, content)
	return err
}

// EditFile replaces the content of a named document. It reports whether
// the content changed.
func (s *Studio) EditFile(ctx context.Context, name, content string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editLocked(ctx, name, content)
}

func (s *Studio) editLocked(ctx context.Context, name, content string) (bool, error) {
	changed, err := s.files.SetContent(name, content)
	if err != nil || !changed {
		return false, err
	}
	logging.WorkspaceDebug("edited %s (%d bytes)", name, len(content))
	s.mutatedLocked(ctx)
	return true, nil
}

// CreateFile adds an empty document and makes it active.
func (s *Studio) CreateFile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.files.Create(name); err != nil {
		return err
	}
	s.active = name
	s.term.Log(terminal.System, "Created file: "+name)
	logging.Workspace("created %s", name)
	s.mutatedLocked(ctx)
	return nil
}

// DeleteFile removes a document. Deleting the active document selects the
// first remaining one.
func (s *Studio) DeleteFile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.files.Delete(name); err != nil {
		return err
	}
	if s.active == name {
		s.active = s.files.First()
	}
	s.term.Log(terminal.System, "Deleted file: "+name)
	logging.Workspace("deleted %s, active is %q", name, s.active)
	s.mutatedLocked(ctx)
	return nil
}

// AddPackage declares a dependency given as name[@version]. Declaring a
// name twice is a no-op; it reports whether the package was added.
func (s *Studio) AddPackage(ctx context.Context, ref string) (bool, error) {
	dep, err := workspace.ParseDependency(ref)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deps.Add(dep) {
		return false, nil
	}
	s.term.Log(terminal.Success, "Added package: "+dep.String())
	s.mutatedLocked(ctx)
	return true, nil
}

// RemovePackage drops a dependency declaration.
func (s *Studio) RemovePackage(ctx context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deps.Remove(name) {
		return false
	}
	s.term.Log(terminal.System, "Removed package: "+name)
	s.mutatedLocked(ctx)
	return true
}

// ClearTerminal empties the terminal.
func (s *Studio) ClearTerminal() error {
	return s.term.Clear()
}

// Refresh rebuilds the preview if the refresh token moved since the last
// build.
func (s *Studio) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

// mutatedLocked runs after every document or dependency change.
func (s *Studio) mutatedLocked(ctx context.Context) {
	s.token = s.token.Next()
	s.persistLocked()
	s.syncDiskLocked()
	if s.opts.AutoRefresh {
		if err := s.refreshLocked(ctx); err != nil {
			s.term.Log(terminal.Error, "Preview failed: "+err.Error())
		}
	}
}

func (s *Studio) refreshLocked(ctx context.Context) error {
	if s.opts.Preview == nil {
		return nil
	}
	gen, rebuilt, err := s.opts.Preview.Sync(ctx, s.token, func() string {
		timer := logging.StartTimer(logging.CategoryPreview, "compose")
		defer timer.Stop()
		return s.opts.Composer.Compose(s.files, s.deps.List())
	})
	if err != nil {
		return err
	}
	if rebuilt {
		logging.Studio("preview generation %d for token %d", gen, s.token)
	}
	return nil
}

func (s *Studio) persistLocked() {
	if s.opts.Store == nil {
		return
	}
	if err := s.opts.Store.SaveWorkspace(s.snapshotLocked()); err != nil {
		logging.Get(logging.CategoryStudio).Warn("persist workspace: %v", err)
	}
}

func (s *Studio) syncDiskLocked() {
	if s.opts.ProjectDir == "" {
		return
	}
	if _, err := watch.WriteCollection(s.opts.ProjectDir, s.files); err != nil {
		logging.Get(logging.CategoryStudio).Warn("write project dir: %v", err)
	}
	if _, err := watch.RemoveStale(s.opts.ProjectDir, s.files); err != nil {
		logging.Get(logging.CategoryStudio).Warn("clean project dir: %v", err)
	}
}

func (s *Studio) recordTurnLocked(role assist.Role, text string) assist.Turn {
	turn := assist.Turn{ID: uuid.NewString(), Role: role, Text: text, Timestamp: time.Now()}
	s.history = append(s.history, turn)
	if s.opts.Store != nil {
		if err := s.opts.Store.AppendMessage(turn); err != nil {
			logging.Get(logging.CategoryStudio).Warn("persist message: %v", err)
		}
	}
	return turn
}
