// Package terminal is the append-only log the user reads: diagnostics relayed
// from isolated contexts plus system and success lines from the studio.
package terminal

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"fiesta/internal/logging"
)

// Severity classifies an entry.
type Severity string

const (
	Info    Severity = "info"
	Warn    Severity = "warn"
	Error   Severity = "error"
	System  Severity = "system"
	Success Severity = "success"
)

// Diagnostic reports whether s is one of the severities an isolated context
// may emit.
func (s Severity) Diagnostic() bool {
	return s == Info || s == Warn || s == Error
}

// Entry is one terminal line.
type Entry struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal persists entries. The SQLite store implements it.
type Journal interface {
	AppendLog(e Entry) error
	ClearLogs() error
}

// Terminal collects entries in order and fans them out to subscribers.
type Terminal struct {
	mu      sync.Mutex
	entries []Entry
	journal Journal

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Entry)
}

// New returns an empty terminal. journal may be nil.
func New(journal Journal) *Terminal {
	return &Terminal{journal: journal, subs: make(map[int]func(Entry))}
}

// Restore seeds the terminal with previously persisted entries without
// notifying subscribers or writing to the journal.
func (t *Terminal) Restore(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entries...)
}

// Log appends a new entry with a fresh ID and the current time.
func (t *Terminal) Log(sev Severity, message string) Entry {
	e := Entry{ID: uuid.NewString(), Severity: sev, Message: message, Timestamp: time.Now()}
	t.Append(e)
	return e
}

// Append records e and notifies subscribers in append order.
func (t *Terminal) Append(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	// subMu is held across the append so subscribers observe entries in
	// the same order as Entries.
	t.subMu.Lock()
	defer t.subMu.Unlock()

	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.AppendLog(e); err != nil {
			logging.Get(logging.CategoryStore).Warn("journal append failed: %v", err)
		}
	}
	for _, id := range t.subscriberIDs() {
		t.subs[id](e)
	}
}

func (t *Terminal) subscriberIDs() []int {
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Entries returns a copy of all entries.
func (t *Terminal) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

// Len returns the number of entries.
func (t *Terminal) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear drops every entry, including the journal's copy.
func (t *Terminal) Clear() error {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
	if t.journal != nil {
		return t.journal.ClearLogs()
	}
	return nil
}

// Subscribe registers fn for every future entry. The returned function
// removes the subscription. fn must not call Append.
func (t *Terminal) Subscribe(fn func(Entry)) (unsubscribe func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subs, id)
	}
}
