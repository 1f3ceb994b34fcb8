// Package watch mirrors a workspace to a project directory on disk and
// reports edits made there by other tools.
package watch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"fiesta/internal/logging"
	"fiesta/internal/workspace"
)

// MaxFileSize bounds documents read from disk.
const MaxFileSize = 1 << 20

// rootOrder puts the conventional documents first when loading a directory.
var rootOrder = []string{workspace.RootMarkup, workspace.RootStyle, workspace.RootScript}

// Tracked reports whether a file name in the project directory is mirrored.
// Hidden files and editor droppings are ignored.
func Tracked(name string) bool {
	base := filepath.Base(name)
	if base == "" || strings.HasPrefix(base, ".") {
		return false
	}
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	return true
}

// LoadDir reads the top-level files of dir into a collection. Directories,
// untracked names and oversized files are skipped.
func LoadDir(dir string) (*workspace.Collection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read project dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !e.Type().IsRegular() || !Tracked(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if info.Size() > MaxFileSize {
			logging.Get(logging.CategoryWatch).Warn("skipping %s: %d bytes exceeds limit", e.Name(), info.Size())
			continue
		}
		names = append(names, e.Name())
	}
	slices.SortStableFunc(names, func(a, b string) int {
		return rank(a) - rank(b)
	})

	docs := workspace.NewCollection()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		docs.Put(workspace.NewDocument(name, string(data)))
	}
	logging.WatchDebug("loaded %d documents from %s", docs.Len(), dir)
	return docs, nil
}

func rank(name string) int {
	if i := slices.Index(rootOrder, name); i >= 0 {
		return i
	}
	return len(rootOrder)
}

// WriteCollection writes every document into dir, skipping files whose
// content already matches. It returns the names it wrote.
func WriteCollection(dir string, docs *workspace.Collection) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	var written []string
	for d := range docs.All() {
		path := filepath.Join(dir, d.Name)
		if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, []byte(d.Content)) {
			continue
		}
		if err := os.WriteFile(path, []byte(d.Content), 0644); err != nil {
			return written, fmt.Errorf("write %s: %w", d.Name, err)
		}
		written = append(written, d.Name)
	}
	if len(written) > 0 {
		logging.Watch("wrote %v to %s", written, dir)
	}
	return written, nil
}

// RemoveStale deletes tracked files in dir that are no longer documents.
func RemoveStale(dir string, docs *workspace.Collection) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read project dir: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if e.IsDir() || !Tracked(e.Name()) || docs.Has(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
