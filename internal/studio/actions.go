package studio

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"fiesta/internal/assist"
	"fiesta/internal/bridge"
	"fiesta/internal/logging"
	"fiesta/internal/router"
	"fiesta/internal/terminal"
	"fiesta/internal/watch"
	"fiesta/internal/workspace"
)

// fixProblem is the problem statement sent with editor fix actions.
const fixProblem = "Potential bug or improvement needed"

// Run executes the workspace: it rebuilds the preview when a root markup
// document exists, simulates python and java documents through the AI
// collaborator, and runs an active main.go in the interpreter.
func (s *Studio) Run(ctx context.Context) error {
	s.mu.Lock()
	s.term.Log(terminal.System, "--- Executing ---")
	if s.files.Has(workspace.RootMarkup) {
		s.token = s.token.Next()
		if err := s.refreshLocked(ctx); err != nil {
			s.term.Log(terminal.Error, "Preview failed: "+err.Error())
		} else {
			s.term.Log(terminal.Success, "Preview refreshed")
			logging.Preview("run rebuilt preview at token %d", s.token)
		}
	}
	doc, ok := s.files.Get(s.active)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	switch {
	case doc.Language.Simulated():
		return s.simulate(ctx, doc)
	case doc.Language == workspace.LangGo:
		return s.interpret(ctx, doc)
	}
	return nil
}

func (s *Studio) simulate(ctx context.Context, doc workspace.Document) error {
	s.term.Log(terminal.System, fmt.Sprintf("Compiling %s (Simulated)...", doc.Name))
	if s.opts.AI == nil {
		s.term.Log(terminal.Error, "Simulation unavailable: "+assist.ErrMissingAPIKey.Error())
		return assist.ErrMissingAPIKey
	}
	out, err := s.opts.AI.Simulate(ctx, doc.Content, doc.Language, "")
	if err != nil {
		s.term.Log(terminal.Error, "Simulation failed: "+err.Error())
		return err
	}
	s.term.Log(terminal.Info, out)
	return nil
}

func (s *Studio) interpret(ctx context.Context, doc workspace.Document) error {
	if s.opts.Interp == nil {
		s.term.Log(terminal.Warn, "Go interpreter is disabled")
		return nil
	}
	s.term.Log(terminal.System, "Running "+doc.Name)
	if _, err := s.opts.Interp.Activate(ctx, doc.Content); err != nil {
		s.term.Log(terminal.Error, err.Error())
		return err
	}
	return nil
}

// SendMessage asks the AI collaborator about text with the current project
// files as context. The user turn is always recorded; on success the reply
// is recorded and routed into the documents.
func (s *Studio) SendMessage(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	prior := slices.Clone(s.history)
	s.recordTurnLocked(assist.RoleUser, text)
	files := s.files.Clone()
	persona := s.persona
	s.mu.Unlock()

	if s.opts.AI == nil {
		s.term.Log(terminal.Error, "AI failed to respond")
		return "", assist.ErrMissingAPIKey
	}
	reply, err := s.opts.AI.Complete(ctx, prior, text, files, persona)
	if err != nil {
		logging.Get(logging.CategoryStudio).Warn("send message: %v", err)
		s.term.Log(terminal.Error, "AI failed to respond")
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordTurnLocked(assist.RoleModel, reply)
	s.applyLocked(ctx, reply)
	return reply, nil
}

// AIAction runs an editor action on selection. Explanations are only
// recorded; fixes and documentation are routed into the documents.
func (s *Studio) AIAction(ctx context.Context, action assist.Action, selection string) (string, error) {
	prompt := assist.ActionPrompt(action, selection)

	s.mu.Lock()
	prior := slices.Clone(s.history)
	s.recordTurnLocked(assist.RoleUser, prompt)
	files := s.files.Clone()
	persona := s.persona
	active := s.active
	s.mu.Unlock()

	if s.opts.AI == nil {
		s.term.Log(terminal.Error, fmt.Sprintf("AI Action %s failed", action))
		return "", assist.ErrMissingAPIKey
	}

	var (
		reply string
		err   error
	)
	switch action {
	case assist.ActionExplain:
		reply, err = s.opts.AI.Explain(ctx, selection, active)
	case assist.ActionFix:
		reply, err = s.opts.AI.Fix(ctx, selection, fixProblem)
	default:
		reply, err = s.opts.AI.Complete(ctx, prior, prompt, files, persona)
	}
	if err != nil {
		logging.Get(logging.CategoryStudio).Warn("action %s: %v", action, err)
		s.term.Log(terminal.Error, fmt.Sprintf("AI Action %s failed", action))
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordTurnLocked(assist.RoleModel, reply)
	if action != assist.ActionExplain {
		s.applyLocked(ctx, reply)
	}
	return reply, nil
}

// ApplyResponse routes fenced code in text into the documents.
func (s *Studio) ApplyResponse(ctx context.Context, text string) router.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ctx, text)
}

func (s *Studio) applyLocked(ctx context.Context, text string) router.Outcome {
	out, outcome := s.opts.Router.Route(text, s.files, s.active)
	if !outcome.Changed {
		return outcome
	}
	s.files = out
	for _, name := range outcome.Updated {
		s.term.Log(terminal.Success, "AI updated "+name)
	}
	s.mutatedLocked(ctx)
	return outcome
}

// ApplyDiskChange folds an edit observed in the project directory into the
// documents. Writing the result back is a no-op because disk already
// matches, so no watch loop forms.
func (s *Studio) ApplyDiskChange(ctx context.Context, c watch.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case c.Removed:
		if !s.files.Has(c.Name) || c.Name == workspace.RootMarkup {
			return
		}
		if err := s.files.Delete(c.Name); err != nil {
			logging.Get(logging.CategoryStudio).Warn("disk removal of %s: %v", c.Name, err)
			return
		}
		if s.active == c.Name {
			s.active = s.files.First()
		}
		s.term.Log(terminal.System, "Removed "+c.Name+" (deleted on disk)")
	case s.files.Has(c.Name):
		changed, err := s.files.SetContent(c.Name, c.Content)
		if err != nil || !changed {
			return
		}
		s.term.Log(terminal.System, "Reloaded "+c.Name+" from disk")
	default:
		s.files.Put(workspace.NewDocument(c.Name, c.Content))
		s.term.Log(terminal.System, "Added "+c.Name+" from disk")
	}
	s.mutatedLocked(ctx)
}

// Serve relays diagnostics from every configured isolation host into the
// terminal until ctx is done or the hosts are closed.
func (s *Studio) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.opts.Preview != nil {
		b := bridge.New(s.opts.Preview, s.term)
		g.Go(func() error { return b.Run(ctx) })
	}
	if s.opts.Interp != nil {
		b := bridge.New(s.opts.Interp, s.term)
		g.Go(func() error { return b.Run(ctx) })
	}
	return g.Wait()
}

// Close tears down the isolation hosts. The store is owned by the caller.
func (s *Studio) Close() error {
	var firstErr error
	if s.opts.Preview != nil {
		if err := s.opts.Preview.Close(); err != nil {
			firstErr = err
		}
	}
	if s.opts.Interp != nil {
		if err := s.opts.Interp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
