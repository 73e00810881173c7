package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaignforge/internal/domain"
)

// MemoryJobStore implements domain.JobStore in process memory. It backs tests
// and single-binary development runs.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryJobStore returns an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.Job), now: time.Now}
}

func (s *MemoryJobStore) Create(_ context.Context, input domain.JobInput, mode domain.Mode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	id := uuid.NewString()
	s.jobs[id] = &domain.Job{
		ID:        id,
		Status:    domain.JobStatusQueued,
		Mode:      mode,
		Input:     input,
		Progress:  domain.Progress{Step: "Queued"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Update(_ context.Context, jobID string, update domain.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if update.Status != nil {
		if err := domain.ValidateTransition(job.Status, *update.Status); err != nil {
			return err
		}
		job.Status = *update.Status
	}
	if update.Output != nil {
		job.Output = cloneOutput(update.Output)
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryJobStore) MarkRunning(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusQueued {
		return false, nil
	}
	job.Status = domain.JobStatusRunning
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryJobStore) UpdateProgress(_ context.Context, jobID string, progress domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Progress = job.Progress.Merge(progress)
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryJobStore) UpdateAssetProgress(_ context.Context, jobID string, kind domain.AssetKind, percent int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	next, err := job.Progress.WithAsset(job.Mode, kind, percent, step)
	if err != nil {
		return err
	}
	job.Progress = next
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryJobStore) NextQueued(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var queued []*domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusQueued {
			queued = append(queued, job)
		}
	}
	if len(queued) == 0 {
		return "", domain.ErrNotFound
	}
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].CreatedAt.Equal(queued[j].CreatedAt) {
			return queued[i].ID < queued[j].ID
		}
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	return queued[0].ID, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	out := *job
	if job.Progress.Image != nil {
		v := *job.Progress.Image
		out.Progress.Image = &v
	}
	if job.Progress.Video != nil {
		v := *job.Progress.Video
		out.Progress.Video = &v
	}
	out.Output = cloneOutput(job.Output)
	return &out
}

func cloneOutput(in *domain.CampaignOutput) *domain.CampaignOutput {
	if in == nil {
		return nil
	}
	out := *in
	if in.Brief != nil {
		b := *in.Brief
		out.Brief = &b
	}
	if in.AdImages != nil {
		out.AdImages = make([]domain.AdImage, len(in.AdImages))
		copy(out.AdImages, in.AdImages)
	}
	if in.Brain != nil {
		b := *in.Brain
		b.Creative.Scenes = append([]domain.VideoSceneSpec(nil), in.Brain.Creative.Scenes...)
		out.Brain = &b
	}
	return &out
}

var _ domain.JobStore = (*MemoryJobStore)(nil)
