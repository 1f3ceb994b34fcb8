// Package preview composes a document set and its module dependencies into a
// single self-contained HTML payload for the isolation host.
package preview

import (
	"encoding/json"
	"regexp"
	"strings"

	"fiesta/internal/logging"
	"fiesta/internal/workspace"
)

// MissingMarkup is rendered when the project has no usable index.html.
const MissingMarkup = "<h1>No index.html found</h1>"

// staticImport matches a complete single-line static import. Dynamic
// import() calls do not match.
var staticImport = regexp.MustCompile(`^\s*import\s*(?:[\w$*{},\s]+\s*from\s*)?["'][^"']+["']\s*;?\s*$`)

// Composer builds payloads against a module host.
type Composer struct {
	cdnBase string
}

// NewComposer returns a composer resolving dependencies under cdnBase.
func NewComposer(cdnBase string) *Composer {
	if cdnBase == "" {
		cdnBase = DefaultCDNBase
	}
	return &Composer{cdnBase: cdnBase}
}

// Compose is NewComposer(DefaultCDNBase).Compose.
func Compose(docs *workspace.Collection, deps []workspace.Dependency) string {
	return NewComposer(DefaultCDNBase).Compose(docs, deps)
}

// Compose assembles the payload. It is a pure function of its inputs and
// never fails: broken user code is reported by the shim at run time.
func (c *Composer) Compose(docs *workspace.Collection, deps []workspace.Dependency) string {
	markup := docs.Content(workspace.RootMarkup, "")
	if markup == "" {
		markup = MissingMarkup
	}
	markup = Sanitize(markup)
	style := Sanitize(docs.Content(workspace.RootStyle, ""))
	imports, body := splitImports(Sanitize(docs.Content(workspace.RootScript, "")))

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\" />\n")
	b.WriteString("<style>\n" + style + "\n</style>\n")
	b.WriteString("<script type=\"importmap\">" + c.importMapJSON(deps) + "</script>\n")
	b.WriteString("<script>\n" + Shim() + "\n</script>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString(markup + "\n")
	b.WriteString("<script type=\"module\">\n")
	for _, line := range imports {
		b.WriteString(line + "\n")
	}
	b.WriteString("try {\n" + body + "\n} catch (err) {\n  console.error(err);\n}\n")
	b.WriteString("</script>\n</body>\n</html>\n")
	logging.PreviewDebug("composed %d bytes (%d deps, %d hoisted imports)", b.Len(), len(deps), len(imports))
	return b.String()
}

func (c *Composer) importMapJSON(deps []workspace.Dependency) string {
	doc := struct {
		Imports map[string]string `json:"imports"`
	}{Imports: ImportMap(c.cdnBase, deps)}

	// json.Marshal sorts map keys and escapes '<', so the output is stable
	// and cannot close the surrounding tag.
	data, err := json.Marshal(doc)
	if err != nil {
		return `{"imports":{}}`
	}
	return string(data)
}

// splitImports moves single-line static imports out of the script so they
// can sit above the try block, where the module grammar allows them.
func splitImports(script string) (imports []string, body string) {
	lines := strings.Split(script, "\n")
	rest := lines[:0:0]
	for _, line := range lines {
		if staticImport.MatchString(line) {
			imports = append(imports, strings.TrimSpace(line))
			continue
		}
		rest = append(rest, line)
	}
	return imports, strings.Join(rest, "\n")
}
