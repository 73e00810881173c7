// Package textgen wraps the chat-style text models used to draft campaign
// strategy and creative direction.
package textgen

import (
	"context"
	"errors"
)

var (
	// ErrMissingCredentials is returned by Complete when no API key is configured.
	ErrMissingCredentials = errors.New("textgen: api key is not configured")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("textgen: empty response")
)

// Request is a single completion call.
type Request struct {
	System string
	User   string
	// JSONMode asks the model to reply with a JSON object only.
	JSONMode    bool
	Temperature float32
}

// Completer produces one completion for a request.
type Completer interface {
	Name() string
	HasCredentials() bool
	Complete(ctx context.Context, req Request) (string, error)
}
