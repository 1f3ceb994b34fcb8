package workspace

import (
	"fmt"
	"slices"
	"strings"
)

// Dependency is a declared external module. An empty Version means the
// module host's latest release.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// String renders the declaration as name[@version].
func (d Dependency) String() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + "@" + d.Version
}

// ParseDependency parses "name", "name@version", "@scope/name" or
// "@scope/name@version".
func ParseDependency(ref string) (Dependency, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Dependency{}, fmt.Errorf("empty dependency")
	}

	offset := 0
	if strings.HasPrefix(ref, "@") {
		offset = 1
	}
	at := strings.LastIndex(ref[offset:], "@")
	if at < 0 {
		return Dependency{Name: ref}, nil
	}
	at += offset

	d := Dependency{Name: ref[:at], Version: ref[at+1:]}
	if d.Name == "" || d.Name == "@" {
		return Dependency{}, fmt.Errorf("invalid dependency %q", ref)
	}
	if d.Version == "" {
		return Dependency{}, fmt.Errorf("invalid dependency %q: empty version", ref)
	}
	return d, nil
}

// Dependencies is an ordered set of declarations unique by name.
type Dependencies struct {
	items []Dependency
}

// NewDependencies builds a set, keeping the first declaration of each name.
func NewDependencies(deps ...Dependency) *Dependencies {
	s := &Dependencies{}
	for _, d := range deps {
		s.Add(d)
	}
	return s
}

// Add declares d. It reports false when the name is already declared.
func (s *Dependencies) Add(d Dependency) bool {
	if d.Name == "" || s.Has(d.Name) {
		return false
	}
	s.items = append(s.items, d)
	return true
}

// Remove drops the named declaration, reporting whether it existed.
func (s *Dependencies) Remove(name string) bool {
	n := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(d Dependency) bool { return d.Name == name })
	return len(s.items) != n
}

// Has reports whether name is declared.
func (s *Dependencies) Has(name string) bool {
	if s == nil {
		return false
	}
	return slices.ContainsFunc(s.items, func(d Dependency) bool { return d.Name == name })
}

// List returns the declarations in the order they were added.
func (s *Dependencies) List() []Dependency {
	if s == nil {
		return nil
	}
	return slices.Clone(s.items)
}

// Len returns the number of declarations.
func (s *Dependencies) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Clone returns an independent copy.
func (s *Dependencies) Clone() *Dependencies {
	return &Dependencies{items: s.List()}
}
