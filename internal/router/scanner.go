package router

import (
	"iter"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fragment is one labelled code block found in assistant text.
type Fragment struct {
	Label string
	Body  string
}

// Scanner extracts fragments in textual order. The returned sequence is lazy
// and can be ranged over more than once.
type Scanner interface {
	Scan(text string) iter.Seq[Fragment]
}

var fencePattern = regexp.MustCompile("(?s)```(\\w+)\\n(.*?)```")

// FenceScanner matches ```label\n...``` blocks with a regular expression.
// It is forgiving about where fences sit and what surrounds them.
type FenceScanner struct{}

// Scan implements Scanner.
func (FenceScanner) Scan(text string) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		rest := text
		for {
			loc := fencePattern.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			frag := Fragment{
				Label: rest[loc[2]:loc[3]],
				Body:  trimClosingNewline(rest[loc[4]:loc[5]]),
			}
			if !yield(frag) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

// MarkdownScanner reads fenced code blocks with a CommonMark parser, so
// fences inside other constructs and unterminated fences follow the
// CommonMark rules. Blocks without an info string are skipped.
type MarkdownScanner struct {
	md goldmark.Markdown
}

// NewMarkdownScanner returns a CommonMark scanner.
func NewMarkdownScanner() *MarkdownScanner {
	return &MarkdownScanner{md: goldmark.New()}
}

// Scan implements Scanner.
func (s *MarkdownScanner) Scan(src string) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		source := []byte(src)
		doc := s.md.Parser().Parse(text.NewReader(source))
		_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			block, ok := n.(*ast.FencedCodeBlock)
			if !ok {
				return ast.WalkContinue, nil
			}
			label := string(block.Language(source))
			if label == "" {
				return ast.WalkSkipChildren, nil
			}

			var body strings.Builder
			lines := block.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				body.Write(seg.Value(source))
			}
			frag := Fragment{Label: label, Body: trimClosingNewline(body.String())}
			if !yield(frag) {
				return ast.WalkStop, nil
			}
			return ast.WalkSkipChildren, nil
		})
	}
}

// trimClosingNewline drops the single line break that precedes a closing
// fence; it belongs to the fence, not the code.
func trimClosingNewline(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
