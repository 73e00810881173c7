package generation

import (
	"context"
	"time"

	"campaignforge/internal/infra"
)

// RetryOptions configures Retry.
type RetryOptions struct {
	// Stage prefixes every returned error.
	Stage   string
	Backoff time.Duration
	Logger  *infra.Logger
}

// Retry runs attempt and, when it fails with a rate limit, waits Backoff and
// runs it exactly once more. A second rate limit is reported as ErrRateLimited
// with IsRateLimit set; the provider's own message is dropped. Other errors
// are returned prefixed with the stage name.
func Retry(ctx context.Context, opts RetryOptions, attempt func(context.Context) (string, error)) Result {
	logger := infra.LoggerOrDiscard(opts.Logger)

	value, err := attempt(ctx)
	if err == nil {
		return Result{Value: value}
	}
	if !IsRateLimit(err) {
		return failed(opts.Stage, err)
	}

	logger.Warn().
		Err(err).
		Str("stage", opts.Stage).
		Dur("backoff", opts.Backoff).
		Msg("generation: rate limited, retrying once")
	if err := sleepCtx(ctx, opts.Backoff); err != nil {
		return failed(opts.Stage, err)
	}

	value, err = attempt(ctx)
	if err == nil {
		return Result{Value: value}
	}
	if IsRateLimit(err) {
		res := failed(opts.Stage, ErrRateLimited)
		res.IsRateLimit = true
		return res
	}
	return failed(opts.Stage, err)
}
