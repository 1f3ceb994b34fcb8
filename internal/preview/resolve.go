package preview

import (
	"strings"

	"fiesta/internal/workspace"
)

// DefaultCDNBase is the public module host dependencies resolve against.
const DefaultCDNBase = "https://esm.sh"

// Resolve maps a declaration to a module URL under base. No network access
// happens here; a bad name fails later inside the isolated context.
func Resolve(base string, dep workspace.Dependency) string {
	if base == "" {
		base = DefaultCDNBase
	}
	url := strings.TrimRight(base, "/") + "/" + dep.Name
	if dep.Version != "" {
		url += "@" + dep.Version
	}
	return url
}

// ImportMap resolves every declaration into an alias table.
func ImportMap(base string, deps []workspace.Dependency) map[string]string {
	imports := make(map[string]string, len(deps))
	for _, d := range deps {
		imports[d.Name] = Resolve(base, d)
	}
	return imports
}
