package router

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiesta/internal/workspace"
)

var scanners = map[string]Scanner{
	"fence":    FenceScanner{},
	"markdown": NewMarkdownScanner(),
}

func project() *workspace.Collection {
	return workspace.NewCollection(
		workspace.NewDocument("index.html", "<h1>old</h1>"),
		workspace.NewDocument("style.css", "body{}"),
		workspace.NewDocument("script.js", "console.log('old')"),
		workspace.NewDocument("notes.md", "draft"),
	)
}

func TestRoute_Determinism(t *testing.T) {
	for name, sc := range scanners {
		t.Run(name, func(t *testing.T) {
			docs := project()
			out, outcome := New(sc).Route("```html\n<p>hi</p>\n```", docs, "")

			assert.True(t, outcome.Changed)
			assert.Equal(t, []string{"index.html"}, outcome.Updated)
			assert.Equal(t, "<p>hi</p>", out.Content("index.html", ""))
			assert.Equal(t, "<h1>old</h1>", docs.Content("index.html", ""), "input must not be mutated")
		})
	}
}

func TestRoute_NoOp(t *testing.T) {
	for name, sc := range scanners {
		t.Run(name, func(t *testing.T) {
			docs := project()
			before := docs.Documents()

			out, outcome := New(sc).Route("Sure! Just rename the heading, no code needed.", docs, "index.html")

			assert.False(t, outcome.Changed)
			assert.Same(t, docs, out)
			if diff := cmp.Diff(before, out.Documents()); diff != "" {
				t.Errorf("collection changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoute_Precedence(t *testing.T) {
	text := "Here you go:\n\n```html\n<button id=\"b\">Go</button>\n```\n\nand\n\n```javascript\ndocument.getElementById('b').onclick = () => console.log('go');\n```\n"
	for name, sc := range scanners {
		t.Run(name, func(t *testing.T) {
			out, outcome := New(sc).Route(text, project(), "notes.md")

			require.True(t, outcome.Changed)
			assert.Equal(t, []string{"index.html", "script.js"}, outcome.Updated)

			want := project()
			want.Put(workspace.NewDocument("index.html", `<button id="b">Go</button>`))
			want.Put(workspace.NewDocument("script.js", "document.getElementById('b').onclick = () => console.log('go');"))
			if diff := cmp.Diff(want.Documents(), out.Documents()); diff != "" {
				t.Errorf("unexpected documents (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoute_FallbackAndDrops(t *testing.T) {
	text := "```markdown\n# Notes\n```\n```python\nprint(1)\n```\n```css\nbody{color:red}\n```"

	t.Run("active document receives unknown labels", func(t *testing.T) {
		out, outcome := New(nil).Route(text, project(), "notes.md")
		assert.Equal(t, "# Notes", out.Content("notes.md", ""))
		assert.Equal(t, "body{color:red}", out.Content("style.css", ""))
		assert.Equal(t, 1, outcome.Dropped, "main.py does not exist and is not created")
		assert.False(t, out.Has("main.py"))
	})

	t.Run("no active document drops unknown labels", func(t *testing.T) {
		out, outcome := New(nil).Route(text, project(), "")
		assert.Equal(t, "draft", out.Content("notes.md", ""))
		assert.Equal(t, 2, outcome.Dropped)
		assert.Equal(t, []string{"style.css"}, outcome.Updated)
	})
}

func TestRoute_LastFragmentWins(t *testing.T) {
	text := "```js\nfirst()\n```\ntext\n```javascript\nsecond()\n```"
	for name, sc := range scanners {
		t.Run(name, func(t *testing.T) {
			out, outcome := New(sc).Route(text, project(), "")
			assert.Equal(t, "second()", out.Content("script.js", ""))
			assert.Equal(t, []string{"script.js"}, outcome.Updated)
		})
	}
}

func TestRoute_GoDocument(t *testing.T) {
	docs := workspace.NewCollection(workspace.NewDocument("main.go", ""))
	out, outcome := New(nil).Route("```go\npackage main\n\nfunc main() {}\n```", docs, "")
	require.True(t, outcome.Changed)
	assert.Equal(t, "package main\n\nfunc main() {}", out.Content("main.go", ""))
}

func TestRoute_MalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"```",
		"```html",
		"```html\n<p>unterminated",
		"``` \nno label\n```",
		"```\nno label\n```",
	}
	for _, in := range inputs {
		docs := project()
		out, outcome := New(FenceScanner{}).Route(in, docs, "notes.md")
		assert.False(t, outcome.Changed, "%q", in)
		assert.Same(t, docs, out)
	}
}

func TestFenceScanner_LazyAndRestartable(t *testing.T) {
	seq := FenceScanner{}.Scan("```a\n1\n```\n```b\n2\n```\n```c\n3\n```")

	var first []Fragment
	for f := range seq {
		first = append(first, f)
		if f.Label == "b" {
			break
		}
	}
	assert.Equal(t, []Fragment{{"a", "1"}, {"b", "2"}}, first)
	assert.Equal(t, []Fragment{{"a", "1"}, {"b", "2"}, {"c", "3"}}, slices.Collect(seq))
}

func TestScanners_TrimOnlyOneNewline(t *testing.T) {
	for name, sc := range scanners {
		t.Run(name, func(t *testing.T) {
			frags := slices.Collect(sc.Scan("```css\na{}\n\n```"))
			require.Len(t, frags, 1)
			assert.Equal(t, Fragment{Label: "css", Body: "a{}\n"}, frags[0])
		})
	}
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "index.html", Target("html", "x.md"))
	assert.Equal(t, "style.css", Target("css", ""))
	assert.Equal(t, "script.js", Target("js", ""))
	assert.Equal(t, "main.py", Target("python", ""))
	assert.Equal(t, "main.go", Target("go", ""))
	assert.Equal(t, "x.md", Target("typescript", "x.md"))
	assert.Empty(t, Target("typescript", ""))
	assert.Equal(t, "x.md", Target("HTML", "x.md"))
	assert.Empty(t, Target("JS", ""))
}

func TestRoute_LabelsAreCaseSensitive(t *testing.T) {
	text := "```HTML\n<h1>shout</h1>\n```"
	for name, sc := range scanners {
		t.Run(name, func(t *testing.T) {
			out, outcome := New(sc).Route(text, project(), "notes.md")
			require.True(t, outcome.Changed)
			assert.Equal(t, []string{"notes.md"}, outcome.Updated)
			assert.Equal(t, "<h1>shout</h1>", out.Content("notes.md", ""))
			assert.Equal(t, "<h1>old</h1>", out.Content("index.html", ""))
		})
	}
}
