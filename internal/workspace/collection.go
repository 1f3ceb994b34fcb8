package workspace

import (
	"fmt"
	"iter"
	"slices"
)

// Collection is an insertion-ordered set of documents keyed by name.
// It is not safe for concurrent mutation; the studio controller owns the
// live collection and hands out clones as build snapshots.
type Collection struct {
	order []string
	docs  map[string]Document
}

// NewCollection returns a collection holding docs in the given order.
// Later duplicates replace earlier ones in place.
func NewCollection(docs ...Document) *Collection {
	c := &Collection{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		c.Put(d)
	}
	return c
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Get returns the named document.
func (c *Collection) Get(name string) (Document, bool) {
	if c == nil {
		return Document{}, false
	}
	d, ok := c.docs[name]
	return d, ok
}

// Has reports whether the named document exists.
func (c *Collection) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Content returns the content of the named document, or fallback when absent.
func (c *Collection) Content(name, fallback string) string {
	if d, ok := c.Get(name); ok {
		return d.Content
	}
	return fallback
}

// Put inserts or replaces a document. Replacing keeps the original position.
func (c *Collection) Put(d Document) {
	if c.docs == nil {
		c.docs = make(map[string]Document)
	}
	if _, ok := c.docs[d.Name]; !ok {
		c.order = append(c.order, d.Name)
	}
	c.docs[d.Name] = d
}

// Create adds a new empty document. Its language is inferred from the name.
func (c *Collection) Create(name string) (Document, error) {
	if name == "" {
		return Document{}, ErrEmptyName
	}
	if c.Has(name) {
		return Document{}, fmt.Errorf("create %s: %w", name, ErrExists)
	}
	d := NewDocument(name, "")
	c.Put(d)
	return d, nil
}

// SetContent replaces a document's content. It reports whether anything changed.
func (c *Collection) SetContent(name, content string) (bool, error) {
	d, ok := c.Get(name)
	if !ok {
		return false, fmt.Errorf("set %s: %w", name, ErrNotFound)
	}
	if d.Content == content {
		return false, nil
	}
	d.Content = content
	c.docs[name] = d
	return true, nil
}

// Delete removes a document. The root markup document cannot be deleted.
func (c *Collection) Delete(name string) error {
	if name == RootMarkup {
		return fmt.Errorf("delete %s: %w", name, ErrProtected)
	}
	if !c.Has(name) {
		return fmt.Errorf("delete %s: %w", name, ErrNotFound)
	}
	delete(c.docs, name)
	c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
	return nil
}

// Names returns document names in insertion order.
func (c *Collection) Names() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.order)
}

// First returns the first document name, or "" for an empty collection.
func (c *Collection) First() string {
	if c.Len() == 0 {
		return ""
	}
	return c.order[0]
}

// All yields documents in insertion order.
func (c *Collection) All() iter.Seq[Document] {
	return func(yield func(Document) bool) {
		if c == nil {
			return
		}
		for _, name := range c.order {
			if !yield(c.docs[name]) {
				return
			}
		}
	}
}

// Documents returns a copy of all documents in insertion order.
func (c *Collection) Documents() []Document {
	return slices.Collect(c.All())
}

// Clone returns an independent snapshot.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return NewCollection()
	}
	out := &Collection{
		order: slices.Clone(c.order),
		docs:  make(map[string]Document, len(c.docs)),
	}
	for k, v := range c.docs {
		out.docs[k] = v
	}
	return out
}

// Equal reports whether both collections hold the same documents in the same order.
func (c *Collection) Equal(other *Collection) bool {
	if c.Len() != other.Len() {
		return false
	}
	if !slices.Equal(c.Names(), other.Names()) {
		return false
	}
	for name, d := range c.docs {
		if other.docs[name] != d {
			return false
		}
	}
	return true
}
