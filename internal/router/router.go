// Package router commits code fragments from assistant replies to the
// documents they belong to.
package router

import (
	"slices"

	"fiesta/internal/logging"
	"fiesta/internal/workspace"
)

// canonical maps fence labels to their fixed target documents.
var canonical = map[string]string{
	"html":       workspace.RootMarkup,
	"css":        workspace.RootStyle,
	"javascript": workspace.RootScript,
	"js":         workspace.RootScript,
	"python":     workspace.PythonMain,
	"go":         workspace.GoMain,
}

// Outcome describes what a Route call did.
type Outcome struct {
	Changed bool
	// Updated lists each replaced document once, in order of first update.
	Updated []string
	// Dropped counts fragments with no target or a missing target document.
	Dropped int
}

// Router applies fragments to a document collection.
type Router struct {
	scanner Scanner
}

// New returns a router using scanner, or FenceScanner when nil.
func New(scanner Scanner) *Router {
	if scanner == nil {
		scanner = FenceScanner{}
	}
	return &Router{scanner: scanner}
}

// Target picks the document a fragment labelled label should replace. The
// canonical table wins; otherwise the active document is used. Labels match
// exactly, so "HTML" is not "html". An empty result means the fragment has
// nowhere to go.
func Target(label, active string) string {
	if name, ok := canonical[label]; ok {
		return name
	}
	return active
}

// Route replaces target documents with the fragments found in text. Later
// fragments for the same document win. Missing documents are never created.
// The input collection is not modified: when something changes a new
// collection is returned, otherwise docs itself.
func (r *Router) Route(text string, docs *workspace.Collection, active string) (out *workspace.Collection, outcome Outcome) {
	out = docs
	defer func() {
		if rec := recover(); rec != nil {
			logging.Get(logging.CategoryRouter).Error("routing aborted: %v", rec)
			out, outcome = docs, Outcome{}
		}
	}()

	for frag := range r.scanner.Scan(text) {
		target := Target(frag.Label, active)
		if target == "" || !docs.Has(target) {
			outcome.Dropped++
			logging.RouterDebug("dropped %q fragment (target %q)", frag.Label, target)
			continue
		}
		if !outcome.Changed {
			out = docs.Clone()
			outcome.Changed = true
		}
		d, _ := out.Get(target)
		d.Content = frag.Body
		out.Put(d)
		if !slices.Contains(outcome.Updated, target) {
			outcome.Updated = append(outcome.Updated, target)
		}
		logging.RouterDebug("%q fragment -> %s (%d bytes)", frag.Label, target, len(frag.Body))
	}

	if outcome.Changed {
		logging.Router("updated %v, dropped %d", outcome.Updated, outcome.Dropped)
	}
	return out, outcome
}
