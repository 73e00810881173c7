package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campaignforge/internal/domain"
)

type brainRecord struct {
	ID        string         `gorm:"primaryKey;type:text"`
	BrandName string         `gorm:"type:text;not null;default:''"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func (brainRecord) TableName() string { return "campaign_brains" }

type brainPayload struct {
	Brief    domain.CampaignBrief   `json:"brief"`
	Creative domain.CreativePrompts `json:"creative"`
}

// BrainRepositoryGorm implements domain.BrainStore on PostgreSQL through gorm.
type BrainRepositoryGorm struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewBrainRepository creates a brain store whose entries expire after ttl.
func NewBrainRepository(db *gorm.DB, ttl time.Duration) *BrainRepositoryGorm {
	return &BrainRepositoryGorm{db: db, ttl: ttl, now: time.Now}
}

// Store upserts the brain under its id and returns that id.
func (r *BrainRepositoryGorm) Store(ctx context.Context, brain domain.Brain) (string, error) {
	if brain.ID == "" {
		return "", fmt.Errorf("%w: brain id is required", domain.ErrValidation)
	}
	stamped := stampBrain(brain, r.now(), r.ttl)
	raw, err := json.Marshal(brainPayload{Brief: stamped.Brief, Creative: stamped.Creative})
	if err != nil {
		return "", fmt.Errorf("encode brain: %w", err)
	}
	rec := brainRecord{
		ID:        stamped.ID,
		BrandName: stamped.BrandName,
		Payload:   datatypes.JSON(raw),
		CreatedAt: stamped.CreatedAt,
		ExpiresAt: stamped.ExpiresAt,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"brand_name", "payload", "created_at", "expires_at"}),
	}).Create(&rec).Error
	if err != nil {
		return "", fmt.Errorf("store brain: %w", err)
	}
	return rec.ID, nil
}

// Get returns the brain when it exists and has not expired.
func (r *BrainRepositoryGorm) Get(ctx context.Context, brainID string) (*domain.Brain, error) {
	var rec brainRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", brainID, r.now()).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load brain: %w", err)
	}
	var payload brainPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode brain: %w", err)
	}
	return &domain.Brain{
		ID:        rec.ID,
		BrandName: rec.BrandName,
		Brief:     payload.Brief,
		Creative:  payload.Creative,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// PurgeExpired deletes expired rows and reports how many were removed.
func (r *BrainRepositoryGorm) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", r.now()).Delete(&brainRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge brains: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// stampBrain fills the timestamps a caller left empty.
func stampBrain(brain domain.Brain, now time.Time, ttl time.Duration) domain.Brain {
	if brain.CreatedAt.IsZero() {
		brain.CreatedAt = now
	}
	if brain.ExpiresAt.IsZero() {
		brain.ExpiresAt = brain.CreatedAt.Add(ttl)
	}
	return brain
}

var _ domain.BrainStore = (*BrainRepositoryGorm)(nil)
