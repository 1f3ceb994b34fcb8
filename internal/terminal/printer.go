package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	severityStyles = map[Severity]lipgloss.Style{
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
		System:  lipgloss.NewStyle().Foreground(lipgloss.Color("#a78bfa")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
	}
)

// Printer renders entries as styled lines.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter writes to w. plain disables colour.
func NewPrinter(w io.Writer, plain bool) *Printer {
	return &Printer{w: w, plain: plain}
}

// Format renders one entry without a trailing newline.
func (p *Printer) Format(e Entry) string {
	ts := e.Timestamp.Format("15:04:05")
	label := fmt.Sprintf("%-7s", strings.ToUpper(string(e.Severity)))
	if p.plain {
		return fmt.Sprintf("[%s] %s %s", ts, label, e.Message)
	}
	style, ok := severityStyles[e.Severity]
	if !ok {
		style = lipgloss.NewStyle()
	}
	return fmt.Sprintf("%s %s %s", timeStyle.Render("["+ts+"]"), style.Render(label), e.Message)
}

// Print writes one entry.
func (p *Printer) Print(e Entry) {
	fmt.Fprintln(p.w, p.Format(e))
}

// PrintAll writes every entry in order.
func (p *Printer) PrintAll(entries []Entry) {
	for _, e := range entries {
		p.Print(e)
	}
}
