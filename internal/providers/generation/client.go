package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campaignforge/internal/infra"
)

const (
	defaultPollInterval     = 10 * time.Second
	defaultMaxWait          = 10 * time.Minute
	defaultRateLimitBackoff = 20 * time.Second
)

// ClientOptions configures a Client.
type ClientOptions struct {
	Stage            string
	PollInterval     time.Duration
	MaxWait          time.Duration
	RateLimitBackoff time.Duration
	Logger           *infra.Logger
}

// Client wraps one Backend with the submit and poll loop.
type Client struct {
	backend      Backend
	stage        string
	pollInterval time.Duration
	maxWait      time.Duration
	backoff      time.Duration
	logger       *infra.Logger
}

// NewClient constructs a client with defaults for unset options.
func NewClient(backend Backend, opts ClientOptions) *Client {
	stage := strings.TrimSpace(opts.Stage)
	if stage == "" {
		stage = "generation"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	backoff := opts.RateLimitBackoff
	if backoff <= 0 {
		backoff = defaultRateLimitBackoff
	}
	return &Client{
		backend:      backend,
		stage:        stage,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		backoff:      backoff,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

// Backend returns the wrapped backend.
func (c *Client) Backend() Backend {
	return c.backend
}

// HasCredentials reports whether the backend can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.backend != nil && c.backend.HasCredentials()
}

// Generate submits prompt once (retrying a rate-limited submit once) and polls
// until the request is done, failed or expired, or MaxWait elapses. The loop
// stops early when ctx is cancelled.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) Result {
	if !c.HasCredentials() {
		return failed(c.stage, ErrMissingCredentials)
	}
	submitted := Retry(ctx, RetryOptions{Stage: c.stage, Backoff: c.backoff, Logger: c.logger},
		func(ctx context.Context) (string, error) {
			return c.backend.Submit(ctx, prompt, opts)
		})
	if !submitted.OK() {
		return submitted
	}
	requestID := submitted.Value
	c.logger.Info().
		Str("provider", c.backend.Name()).
		Str("request_id", requestID).
		Msg("generation: submitted")

	url, err := c.await(ctx, requestID)
	if err != nil {
		return failed(c.stage, err)
	}
	return Result{Value: url}
}

func (c *Client) await(ctx context.Context, requestID string) (string, error) {
	deadline := time.NewTimer(c.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("%w after %s (request %s)", ErrTimeout, c.maxWait, requestID)
		case <-ticker.C:
		}

		res, err := c.backend.Poll(ctx, requestID)
		if err != nil {
			if IsRateLimit(err) {
				c.logger.Warn().Err(err).Str("request_id", requestID).Msg("generation: poll rate limited")
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			return "", fmt.Errorf("poll %s: %w", requestID, err)
		}

		c.logger.Debug().
			Str("provider", c.backend.Name()).
			Str("request_id", requestID).
			Int("attempt", attempt).
			Str("status", string(res.Status)).
			Msg("generation: polled")

		switch res.Status {
		case StatusDone:
			if strings.TrimSpace(res.ResultURL) == "" {
				return "", fmt.Errorf("%w: request %s finished without a result url", ErrProviderFailed, requestID)
			}
			return res.ResultURL, nil
		case StatusFailed:
			return "", fmt.Errorf("%w: %s", ErrProviderFailed, describe(res, "request failed"))
		case StatusExpired:
			return "", fmt.Errorf("%w: %s", ErrProviderFailed, describe(res, "request expired"))
		}
	}
}

func describe(res PollResult, fallback string) string {
	if msg := strings.TrimSpace(res.Message); msg != "" {
		return msg
	}
	return fallback
}
