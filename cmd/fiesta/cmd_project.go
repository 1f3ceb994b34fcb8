package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fiesta/cmd/fiesta/ui"
	"fiesta/internal/config"
	"fiesta/internal/store"
	"fiesta/internal/watch"
	"fiesta/internal/workspace"
)

// initCmd initializes fiesta in the current workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize fiesta in the current workspace",
	Long: `Creates the .fiesta/ directory with a default config.yaml and writes the
starter project (index.html, style.css, script.js) unless the directory
already holds an index.html.`,
	RunE: runInit,
}

// composeCmd prints the composed payload
var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Print the self-contained page built from the workspace",
	RunE:  runCompose,
}

// applyCmd routes code blocks from a reply into the workspace
var applyCmd = &cobra.Command{
	Use:   "apply [file]",
	Short: "Route fenced code blocks from a reply (file or stdin) into the workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApply,
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List and manage workspace documents",
	RunE:  listFiles,
}

var filesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List documents; the active one is starred",
	RunE:  listFiles,
}

var filesNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create an empty document",
	Args:  cobra.ExactArgs(1),
	RunE:  newFile,
}

var filesRmCmd = &cobra.Command{
	Use:   "rm [name]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  removeFile,
}

var filesUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Make a document active",
	Args:  cobra.ExactArgs(1),
	RunE:  useFile,
}

var pkgCmd = &cobra.Command{
	Use:   "pkg",
	Short: "List and manage module dependencies",
	RunE:  listPackages,
}

var pkgLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List declared dependencies",
	RunE:  listPackages,
}

var pkgAddCmd = &cobra.Command{
	Use:   "add [name[@version]]...",
	Short: "Declare dependencies for the import map",
	Args:  cobra.MinimumNArgs(1),
	RunE:  addPackages,
}

var pkgRmCmd = &cobra.Command{
	Use:   "rm [name]...",
	Short: "Remove dependency declarations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  removePackages,
}

// logsCmd shows the persisted terminal
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the terminal log",
	RunE:  showLogs,
}

var (
	composeOut string
	logsClear  bool
	logsTail   int
)

func init() {
	composeCmd.Flags().StringVarP(&composeOut, "output", "o", "", "Write the page to a file instead of stdout")
	logsCmd.Flags().BoolVar(&logsClear, "clear", false, "Clear the terminal log")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 0, "Show only the last N entries")

	filesCmd.AddCommand(filesLsCmd, filesNewCmd, filesRmCmd, filesUseCmd)
	pkgCmd.AddCommand(pkgLsCmd, pkgAddCmd, pkgRmCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}

	cfgPath := config.DefaultPath(ws)
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("fiesta already initialized in %s\n", ws)
		return nil
	}
	cfg := config.DefaultConfig()
	if backendName != "" {
		cfg.Sandbox.Backend = backendName
	}
	if err := cfg.Save(cfgPath); err != nil {
		return err
	}

	docs := workspace.StarterProject()
	if _, err := os.Stat(filepath.Join(ws, workspace.RootMarkup)); err == nil {
		if docs, err = watch.LoadDir(ws); err != nil {
			return err
		}
	}
	written, err := watch.WriteCollection(ws, docs)
	if err != nil {
		return err
	}

	if cfg.Store.Enabled {
		st, err := store.Open(config.ResolvePath(ws, cfg.Store.Path))
		if err != nil {
			return err
		}
		defer st.Close()
		snap := workspace.Snapshot{Files: docs, Deps: workspace.NewDependencies(), Active: docs.First()}
		if err := st.SaveWorkspace(snap); err != nil {
			return err
		}
	}

	logger.Info("Workspace initialized", zap.String("path", ws), zap.Strings("written", written))
	styles := ui.DefaultStyles()
	fmt.Println(styles.Success.Render("Initialized fiesta workspace in " + ws))
	for _, name := range written {
		fmt.Println("  " + styles.Muted.Render("wrote "+name))
	}
	return nil
}

func withApp(cmd *cobra.Command, opts openOptions, fn func(ctx context.Context, a *app) error) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func runCompose(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
		page := a.studio.Compose()
		if composeOut == "" {
			_, err := fmt.Fprint(cmd.OutOrStdout(), page)
			return err
		}
		return os.WriteFile(composeOut, []byte(page), 0644)
	})
}

func runApply(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return err
	}
	return withApp(cmd, openOptions{echo: true}, func(ctx context.Context, a *app) error {
		outcome := a.studio.ApplyResponse(ctx, string(data))
		if !outcome.Changed {
			fmt.Fprintln(cmd.OutOrStdout(), "No documents changed")
		}
		if outcome.Dropped > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d code block(s) had no target\n", outcome.Dropped)
		}
		return nil
	})
}

func listFiles(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
		styles := ui.DefaultStyles()
		active := a.studio.Active()
		for doc := range a.studio.Files().All() {
			marker := "  "
			name := doc.Name
			lang := string(doc.Language)
			if doc.Name == active {
				marker = "* "
			}
			if !plain {
				if doc.Name == active {
					name = styles.Bold.Render(name)
				}
				lang = styles.Muted.Render(lang)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%-24s %s\n", marker, name, lang)
		}
		return nil
	})
}

func newFile(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{echo: true}, func(ctx context.Context, a *app) error {
		return a.studio.CreateFile(ctx, args[0])
	})
}

func removeFile(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{echo: true}, func(ctx context.Context, a *app) error {
		return a.studio.DeleteFile(ctx, args[0])
	})
}

func useFile(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
		return a.studio.SetActive(args[0])
	})
}

func listPackages(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
		deps := a.studio.Dependencies()
		if len(deps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No packages declared")
			return nil
		}
		for _, d := range deps {
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
		}
		return nil
	})
}

func addPackages(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{echo: true}, func(ctx context.Context, a *app) error {
		for _, ref := range args {
			added, err := a.studio.AddPackage(ctx, ref)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already declared\n", ref)
			}
		}
		return nil
	})
}

func removePackages(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{echo: true}, func(ctx context.Context, a *app) error {
		for _, name := range args {
			if !a.studio.RemovePackage(ctx, name) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not declared\n", name)
			}
		}
		return nil
	})
}

func showLogs(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
		if logsClear {
			return a.studio.ClearTerminal()
		}
		entries := a.studio.Terminal().Entries()
		if logsTail > 0 && len(entries) > logsTail {
			entries = entries[len(entries)-logsTail:]
		}
		a.printer.PrintAll(entries)
		return nil
	})
}
