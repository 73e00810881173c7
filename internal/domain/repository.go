package domain

import "context"

// JobStore is the passive ledger of job records. Every write merges into the
// stored record and preserves field groups it does not name.
type JobStore interface {
	Create(ctx context.Context, input JobInput, mode Mode) (string, error)
	Get(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, jobID string, update JobUpdate) error
	// MarkRunning moves a queued job to running. It returns false when the job
	// was no longer queued.
	MarkRunning(ctx context.Context, jobID string) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, progress Progress) error
	UpdateAssetProgress(ctx context.Context, jobID string, kind AssetKind, percent int, step string) error
	// NextQueued returns the oldest queued job id or ErrNotFound.
	NextQueued(ctx context.Context) (string, error)
}

// BrainStore caches creative direction keyed by the originating job id.
type BrainStore interface {
	Store(ctx context.Context, brain Brain) (string, error)
	// Get returns ErrNotFound for missing or expired brains.
	Get(ctx context.Context, brainID string) (*Brain, error)
}
