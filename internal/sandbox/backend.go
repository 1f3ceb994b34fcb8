// Package sandbox hosts isolated execution contexts for composed payloads.
//
// A Host owns at most one live context at a time and tags every message the
// context reports with the generation it was started under. Backends decide
// what "isolated" means: a headless browser page, an external runner process,
// or an embedded Go interpreter.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fiesta/internal/preview"
)

var (
	// ErrClosed is returned by operations on a closed host.
	ErrClosed = errors.New("sandbox host closed")
	// ErrNoBackend is returned when the configured backend is disabled.
	ErrNoBackend = errors.New("sandbox backend disabled")
)

// PostFunc delivers one raw wire message from a running context. It never
// blocks.
type PostFunc func(payload []byte)

// Backend starts isolated contexts.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Start runs payload in a fresh context and returns once it is installed.
	// ctx stays alive for the lifetime of the context and is cancelled on
	// teardown. Messages from the context go through post.
	Start(ctx context.Context, payload string, post PostFunc) (Instance, error)

	// Close releases shared resources such as a browser process.
	Close() error
}

// Instance is one running context.
type Instance interface {
	Close() error
}

// Envelope is an inbound message tagged with the generation of the context
// that produced it.
type Envelope struct {
	Generation uint64
	Payload    []byte
	Received   time.Time
}

// Wire is the diagnostic message format shared by every backend.
type Wire struct {
	Type    string `json:"type"`
	LogType string `json:"logType"`
	Message string `json:"message"`
}

// EncodeWire builds a tagged diagnostic message. Backends that observe output
// natively (interpreter stdout, runner stderr) use it to speak the same format
// as the in-page shim.
func EncodeWire(logType, message string) []byte {
	data, err := json.Marshal(Wire{Type: preview.ChannelTag, LogType: logType, Message: message})
	if err != nil {
		return nil
	}
	return data
}
