package worker

import (
	"context"
	"errors"
	"time"

	"campaignforge/internal/domain"
	"campaignforge/internal/infra"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultPurgeInterval = time.Hour
)

// Processor drives a single job.
type Processor interface {
	Process(ctx context.Context, jobID string)
}

// Purger drops expired cache entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Jobs      domain.JobStore
	Processor Processor
	// Purger is optional; when set expired brains are dropped every
	// PurgeInterval.
	Purger        Purger
	PollInterval  time.Duration
	PurgeInterval time.Duration
	Logger        *infra.Logger
}

// Runner claims queued jobs one at a time and hands them to the processor.
type Runner struct {
	jobs          domain.JobStore
	processor     Processor
	purger        Purger
	pollInterval  time.Duration
	purgeInterval time.Duration
	logger        *infra.Logger
	now           func() time.Time
}

// NewRunner returns a claim loop.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil || opts.Processor == nil {
		return nil, errors.New("worker: job store and processor are required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	purge := opts.PurgeInterval
	if purge <= 0 {
		purge = defaultPurgeInterval
	}
	return &Runner{
		jobs:          opts.Jobs,
		processor:     opts.Processor,
		purger:        opts.Purger,
		pollInterval:  poll,
		purgeInterval: purge,
		logger:        infra.LoggerOrDiscard(opts.Logger),
		now:           time.Now,
	}, nil
}

// Run polls for queued jobs until ctx is cancelled and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Dur("poll_interval", r.pollInterval).Msg("worker: started")
	var lastPurge time.Time
	var lastJob string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.purger != nil && r.now().Sub(lastPurge) >= r.purgeInterval {
			r.purge(ctx)
			lastPurge = r.now()
		}

		jobID, err := r.jobs.NextQueued(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			lastJob = ""
			if err := wait(ctx, r.pollInterval); err != nil {
				return err
			}
			continue
		case err != nil:
			r.logger.Error().Err(err).Msg("worker: failed to claim job")
			if err := wait(ctx, r.pollInterval); err != nil {
				return err
			}
			continue
		}

		// A job that is still queued after processing could not be claimed;
		// back off instead of spinning on it.
		if jobID == lastJob {
			if err := wait(ctx, r.pollInterval); err != nil {
				return err
			}
		}
		lastJob = jobID
		r.logger.Info().Str("job_id", jobID).Msg("worker: picked job")
		r.processor.Process(ctx, jobID)
	}
}

func (r *Runner) purge(ctx context.Context) {
	n, err := r.purger.PurgeExpired(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("worker: purge expired brains failed")
		return
	}
	if n > 0 {
		r.logger.Info().Int64("purged", n).Msg("worker: expired brains purged")
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
