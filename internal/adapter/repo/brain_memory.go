package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campaignforge/internal/domain"
)

// MemoryBrainStore implements domain.BrainStore in process memory.
type MemoryBrainStore struct {
	mu     sync.RWMutex
	brains map[string]domain.Brain
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryBrainStore returns an empty store whose entries expire after ttl.
func NewMemoryBrainStore(ttl time.Duration) *MemoryBrainStore {
	return &MemoryBrainStore{brains: make(map[string]domain.Brain), ttl: ttl, now: time.Now}
}

// SetClock overrides the time source.
func (s *MemoryBrainStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryBrainStore) Store(_ context.Context, brain domain.Brain) (string, error) {
	if brain.ID == "" {
		return "", fmt.Errorf("%w: brain id is required", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stamped := stampBrain(brain, s.now(), s.ttl)
	stamped.Creative.Scenes = append([]domain.VideoSceneSpec(nil), brain.Creative.Scenes...)
	s.brains[stamped.ID] = stamped
	return stamped.ID, nil
}

func (s *MemoryBrainStore) Get(_ context.Context, brainID string) (*domain.Brain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	brain, ok := s.brains[brainID]
	if !ok || brain.Expired(s.now()) {
		return nil, domain.ErrNotFound
	}
	brain.Creative.Scenes = append([]domain.VideoSceneSpec(nil), brain.Creative.Scenes...)
	return &brain, nil
}

// PurgeExpired drops expired entries.
func (s *MemoryBrainStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed int64
	for id, brain := range s.brains {
		if brain.Expired(now) {
			delete(s.brains, id)
			removed++
		}
	}
	return removed, nil
}

var _ domain.BrainStore = (*MemoryBrainStore)(nil)
