package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campaignforge/internal/domain"
	"campaignforge/internal/infra"
	"campaignforge/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL. Read-modify-write
// operations lock the row inside a transaction so concurrent progress writes
// from fanned-out stages do not clobber each other.
type JobRepositoryPG struct {
	sql infra.TxRunner
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.TxRunner) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new queued job record.
func (r *JobRepositoryPG) Create(ctx context.Context, input domain.JobInput, mode domain.Mode) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode job input: %w", err)
	}
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QInsertCampaignJob, string(mode), raw).Scan(&id); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectCampaignJob, jobID))
}

// Update merges the non-nil field groups into the stored record.
func (r *JobRepositoryPG) Update(ctx context.Context, jobID string, update domain.JobUpdate) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return domain.ErrNotFound
	}
	return r.sql.WithTx(ctx, func(tx infra.SQLExecutor) error {
		current, err := scanJob(tx.QueryRow(ctx, sqlinline.QSelectCampaignJobForUpdate, jobID))
		if err != nil {
			return err
		}
		var status *string
		if update.Status != nil {
			if err := domain.ValidateTransition(current.Status, *update.Status); err != nil {
				return err
			}
			s := string(*update.Status)
			status = &s
		}
		var output []byte
		if update.Output != nil {
			if output, err = json.Marshal(update.Output); err != nil {
				return fmt.Errorf("encode job output: %w", err)
			}
		}
		_, err = tx.Exec(ctx, sqlinline.QUpdateCampaignJob, jobID, status, output, update.Error)
		return err
	})
}

// MarkRunning atomically moves a queued job to running.
func (r *JobRepositoryPG) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return false, domain.ErrNotFound
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkCampaignJobRunning, jobID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateProgress merges progress into the stored progress.
func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress domain.Progress) error {
	return r.mutateProgress(ctx, jobID, func(job *domain.Job) (domain.Progress, error) {
		return job.Progress.Merge(progress), nil
	})
}

// UpdateAssetProgress replaces one sub-progress entry and recomputes the overall percent.
func (r *JobRepositoryPG) UpdateAssetProgress(ctx context.Context, jobID string, kind domain.AssetKind, percent int, step string) error {
	return r.mutateProgress(ctx, jobID, func(job *domain.Job) (domain.Progress, error) {
		return job.Progress.WithAsset(job.Mode, kind, percent, step)
	})
}

// NextQueued returns the oldest queued job id.
func (r *JobRepositoryPG) NextQueued(ctx context.Context) (string, error) {
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectNextQueuedCampaignJob).Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

func (r *JobRepositoryPG) mutateProgress(ctx context.Context, jobID string, fn func(*domain.Job) (domain.Progress, error)) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return domain.ErrNotFound
	}
	return r.sql.WithTx(ctx, func(tx infra.SQLExecutor) error {
		current, err := scanJob(tx.QueryRow(ctx, sqlinline.QSelectCampaignJobForUpdate, jobID))
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode job progress: %w", err)
		}
		_, err = tx.Exec(ctx, sqlinline.QUpdateCampaignJobProgress, jobID, raw)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                     domain.Job
		status, mode            string
		input, progress, output []byte
		createdAt, updatedAt    time.Time
	)
	if err := row.Scan(&job.ID, &status, &mode, &input, &progress, &output, &job.Error, &createdAt, &updatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Mode = domain.Mode(mode)
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt
	if err := json.Unmarshal(input, &job.Input); err != nil {
		return nil, fmt.Errorf("decode job input: %w", err)
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.Progress); err != nil {
			return nil, fmt.Errorf("decode job progress: %w", err)
		}
	}
	if len(output) > 0 {
		var out domain.CampaignOutput
		if err := json.Unmarshal(output, &out); err != nil {
			return nil, fmt.Errorf("decode job output: %w", err)
		}
		job.Output = &out
	}
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
