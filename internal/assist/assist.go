// Package assist talks to the remote AI completion service.
package assist

import (
	"context"
	"errors"
	"time"

	"fiesta/internal/workspace"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("assist: API key is missing")

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one chat message.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Completer is the AI collaborator. Every method may fail for network, auth
// or quota reasons; callers treat any error as "no update".
type Completer interface {
	// Complete answers prompt given the conversation so far and the current
	// project files. persona switches to the exuberant assistant voice.
	Complete(ctx context.Context, history []Turn, prompt string, files *workspace.Collection, persona bool) (string, error)

	// Explain describes code found in the document docName.
	Explain(ctx context.Context, code, docName string) (string, error)

	// Fix returns a corrected code block for code with the given problem.
	Fix(ctx context.Context, code, problem string) (string, error)

	// Simulate pretends to run code in lang and returns its output.
	Simulate(ctx context.Context, code string, lang workspace.Language, input string) (string, error)
}
