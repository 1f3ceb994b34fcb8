// Package bridge relays diagnostic messages from isolated contexts into the
// terminal. The channel tag check is the only authentication across the
// trust boundary; anything else arriving on the channel is ignored.
package bridge

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fiesta/internal/logging"
	"fiesta/internal/preview"
	"fiesta/internal/sandbox"
	"fiesta/internal/terminal"
)

// Source is the inbound side of an isolation host.
type Source interface {
	Messages() <-chan sandbox.Envelope
	Generation() uint64
}

// Sink receives accepted diagnostics.
type Sink interface {
	Append(e terminal.Entry)
}

// Stats counts what the bridge saw.
type Stats struct {
	Accepted uint64
	Rejected uint64 // malformed or untagged
	Stale    uint64 // from a torn-down context
}

// Bridge drains one host's inbound channel on a single goroutine, so
// diagnostics are forwarded in emission order.
type Bridge struct {
	src  Source
	sink Sink
	now  func() time.Time

	accepted atomic.Uint64
	rejected atomic.Uint64
	stale    atomic.Uint64
}

// New creates a bridge from src to sink.
func New(src Source, sink Sink) *Bridge {
	return &Bridge{src: src, sink: sink, now: time.Now}
}

// Run forwards messages until ctx is done or the source channel is closed.
func (b *Bridge) Run(ctx context.Context) error {
	msgs := b.src.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-msgs:
			if !ok {
				st := b.Stats()
				logging.Bridge("source closed: %d accepted, %d rejected, %d stale", st.Accepted, st.Rejected, st.Stale)
				return nil
			}
			b.Deliver(env)
		}
	}
}

// Deliver validates one envelope and forwards it. It reports whether the
// message reached the sink.
func (b *Bridge) Deliver(env sandbox.Envelope) bool {
	if current := b.src.Generation(); env.Generation != current {
		b.stale.Add(1)
		logging.BridgeDebug("discarding message from generation %d (current %d)", env.Generation, current)
		return false
	}

	sev, message, ok := Decode(env.Payload)
	if !ok {
		b.rejected.Add(1)
		if logging.IsCategoryEnabled(logging.CategoryBridge) {
			logging.BridgeDebug("rejected untagged message: %.80q", env.Payload)
		}
		return false
	}

	b.accepted.Add(1)
	b.sink.Append(terminal.Entry{
		ID:        uuid.NewString(),
		Severity:  sev,
		Message:   message,
		Timestamp: b.now(),
	})
	return true
}

// Decode parses a wire message. ok is false unless the message carries the
// diagnostic channel tag and one of the diagnostic severities. Keys must be
// spelled exactly; encoding/json would otherwise accept "TYPE" for "type".
func Decode(payload []byte) (sev terminal.Severity, message string, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", "", false
	}
	var tag, logType string
	if !stringField(fields, "type", &tag) || tag != preview.ChannelTag {
		return "", "", false
	}
	if !stringField(fields, "logType", &logType) || !stringField(fields, "message", &message) {
		return "", "", false
	}
	sev = terminal.Severity(logType)
	if !sev.Diagnostic() {
		return "", "", false
	}
	return sev, message, true
}

func stringField(fields map[string]json.RawMessage, key string, dst *string) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Accepted: b.accepted.Load(),
		Rejected: b.rejected.Load(),
		Stale:    b.stale.Load(),
	}
}
