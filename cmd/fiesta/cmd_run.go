package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fiesta/internal/watch"
)

// runCmd executes the workspace in its isolated contexts
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compose and run the workspace, streaming console output",
	Long: `Composes the workspace into a page and runs it in the configured sandbox
backend: a headless browser, a local HTTP preview server (serve) or an
external runner process. Console output and uncaught errors from the page are printed as they
arrive. Python and Java documents are simulated by the AI collaborator; an
active main.go runs in the embedded Go interpreter.

With --watch, edits to files in the workspace directory are picked up and the
preview is rebuilt until interrupted.`,
	RunE: runWorkspace,
}

var (
	runWatch    bool
	runFor      time.Duration
	runDebounce time.Duration
)

// defaultSettle is how long a one-shot run keeps collecting diagnostics.
const defaultSettle = 3 * time.Second

func init() {
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Rebuild the preview when workspace files change")
	runCmd.Flags().DurationVar(&runFor, "for", 0, "Stop after this long (default 3s without --watch)")
	runCmd.Flags().DurationVar(&runDebounce, "debounce", 200*time.Millisecond, "Quiet period before a file change is applied")
}

func runWorkspace(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit := runFor
	if limit == 0 && !runWatch {
		limit = defaultSettle
	}
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	a, err := openApp(ctx, openOptions{live: true, echo: true})
	if err != nil {
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.studio.Serve(gctx) })

	if err := a.studio.Run(gctx); err != nil {
		logger.Debug("Run reported an error", zap.Error(err))
	}
	if a.serve != nil && a.serve.URL() != "" {
		fmt.Printf("Preview at %s\n", a.serve.URL())
	}

	if runWatch {
		w, err := watch.New(a.ws, runDebounce, func(c watch.Change) {
			a.studio.ApplyDiskChange(gctx, c)
		})
		if err != nil {
			return fmt.Errorf("failed to watch workspace: %w", err)
		}
		if err := w.Start(gctx); err != nil {
			return err
		}
		defer w.Stop()
		logger.Info("Watching workspace", zap.String("path", a.ws))
	}

	<-gctx.Done()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
