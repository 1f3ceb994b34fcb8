package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"fiesta/internal/assist"
)

// askCmd sends a chat message to the AI collaborator
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask the AI about the project; code in the reply is applied",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var explainCmd = newActionCmd(assist.ActionExplain, "Explain a document or a line range of it")
var fixCmd = newActionCmd(assist.ActionFix, "Ask the AI to fix a document and apply the result")
var documentCmd = newActionCmd(assist.ActionDocument, "Ask the AI to document a document and apply the result")

var (
	askPersona  bool
	actionLines string
)

func init() {
	askCmd.Flags().BoolVar(&askPersona, "persona", false, "Answer in fiesta mode")
	for _, c := range []*cobra.Command{explainCmd, fixCmd, documentCmd} {
		c.Flags().StringVar(&actionLines, "lines", "", "Restrict the selection to a line range, e.g. 10:24")
	}
}

func newActionCmd(action assist.Action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " [file]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, action, args[0])
		},
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	return withApp(cmd, openOptions{echo: true}, func(ctx context.Context, a *app) error {
		if err := a.requireAI(); err != nil {
			return err
		}
		a.studio.SetPersona(askPersona)
		reply, err := a.studio.SendMessage(ctx, joinArgs(args))
		if err != nil {
			return err
		}
		return renderReply(reply)
	})
}

func runAction(cmd *cobra.Command, action assist.Action, name string) error {
	return withApp(cmd, openOptions{echo: true}, func(ctx context.Context, a *app) error {
		if err := a.requireAI(); err != nil {
			return err
		}
		doc, ok := a.studio.Files().Get(name)
		if !ok {
			return fmt.Errorf("no document named %s", name)
		}
		selection, err := selectLines(doc.Content, actionLines)
		if err != nil {
			return err
		}
		if err := a.studio.SetActive(name); err != nil {
			return err
		}
		reply, err := a.studio.AIAction(ctx, action, selection)
		if err != nil {
			return err
		}
		return renderReply(reply)
	})
}

// selectLines cuts a 1-based inclusive "from:to" range out of content.
// An empty range selects everything.
func selectLines(content, lineRange string) (string, error) {
	if lineRange == "" {
		return content, nil
	}
	fromStr, toStr, ok := strings.Cut(lineRange, ":")
	if !ok {
		return "", fmt.Errorf("invalid line range %q (want from:to)", lineRange)
	}
	lines := strings.Split(content, "\n")
	from, err := strconv.Atoi(fromStr)
	if err != nil || from < 1 {
		return "", fmt.Errorf("invalid line range %q", lineRange)
	}
	to := len(lines)
	if toStr != "" {
		if to, err = strconv.Atoi(toStr); err != nil || to < from {
			return "", fmt.Errorf("invalid line range %q", lineRange)
		}
	}
	if from > len(lines) {
		return "", fmt.Errorf("line range %q is past the end of the document (%d lines)", lineRange, len(lines))
	}
	to = min(to, len(lines))
	return strings.Join(lines[from-1:to], "\n"), nil
}

func renderReply(reply string) error {
	var (
		renderer *glamour.TermRenderer
		err      error
	)
	if plain {
		renderer, err = glamour.NewTermRenderer(glamour.WithStylePath("notty"), glamour.WithWordWrap(80))
	} else {
		renderer, err = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	}
	if err != nil {
		fmt.Fprintln(os.Stdout, reply)
		return nil
	}
	out, err := renderer.Render(reply)
	if err != nil {
		fmt.Fprintln(os.Stdout, reply)
		return nil
	}
	fmt.Fprint(os.Stdout, out)
	return nil
}
