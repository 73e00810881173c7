// Package generation adapts slow external asset generators (submit, then
// poll) into a single Generate call with bounded rate-limit retry.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a request is still pending at the deadline.
	ErrTimeout = errors.New("generation timed out")
	// ErrProviderFailed is returned when the provider reports failure or expiry.
	ErrProviderFailed = errors.New("provider reported failure")
	// ErrRateLimited replaces the raw provider error after the retry also hit a rate limit.
	ErrRateLimited = errors.New("rate limited, try again later")
	// ErrMissingCredentials is returned when the backend has no API key.
	ErrMissingCredentials = errors.New("provider credentials are not configured")
)

// RateLimitError signals that the provider throttled the request.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "rate limited"
	}
	if e.Provider == "" {
		return msg
	}
	return e.Provider + ": " + msg
}

// IsRateLimit reports whether err carries a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Status is the provider-side state of a submitted request.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// PollResult is one observation of a submitted request.
type PollResult struct {
	Status    Status
	ResultURL string
	Message   string
}

// Options are per-request generation hints. Backends ignore what they do not support.
type Options struct {
	AspectRatio     string
	DurationSeconds int
	NegativePrompt  string
	RequestID       string
}

// Backend is one external generation service.
type Backend interface {
	Name() string
	HasCredentials() bool
	Submit(ctx context.Context, prompt string, opts Options) (string, error)
	Poll(ctx context.Context, requestID string) (PollResult, error)
}

// Downloader is implemented by backends whose result URLs need authenticated
// or provider-specific fetching.
type Downloader interface {
	Download(ctx context.Context, resultURL string) ([]byte, string, error)
}

// Result is the tagged outcome of a generation call. Exactly one of Value and
// Err is set.
type Result struct {
	Value       string
	Err         error
	IsRateLimit bool
}

// OK reports whether the call produced a value.
func (r Result) OK() bool {
	return r.Err == nil
}

func failed(stage string, err error) Result {
	return Result{Err: fmt.Errorf("%s: %w", stage, err)}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
