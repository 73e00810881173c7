package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Mode selects which generation branches a job runs.
type Mode string

const (
	ModeImage     Mode = "image"
	ModeVideo     Mode = "video"
	ModeVideoFast Mode = "video-fast"
	ModeBoth      Mode = "both"
)

// ParseMode normalizes user input into a known mode.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeImage, ModeVideo, ModeVideoFast, ModeBoth:
		return m, nil
	case "":
		return "", fmt.Errorf("%w: mode is required", ErrValidation)
	default:
		return "", fmt.Errorf("%w: unsupported mode %q", ErrValidation, raw)
	}
}

// WantsImages reports whether the mode produces ad images.
func (m Mode) WantsImages() bool {
	return m == ModeImage || m == ModeBoth
}

// WantsVideo reports whether the mode produces a video.
func (m Mode) WantsVideo() bool {
	return m == ModeVideo || m == ModeVideoFast || m == ModeBoth
}

// JobInput is the campaign description supplied at enqueue time.
type JobInput struct {
	BrandName       string `json:"brandName"`
	CampaignID      string `json:"campaignId,omitempty"`
	BrainID         string `json:"brainId,omitempty"`
	BrandContext    string `json:"brandContext,omitempty"`
	KeywordContext  string `json:"keywordContext,omitempty"`
	StrategyContext string `json:"strategyContext,omitempty"`
}

// Validate checks the fields the given mode depends on.
func (in JobInput) Validate(mode Mode) error {
	if mode == ModeVideoFast {
		if strings.TrimSpace(in.BrainID) == "" {
			return fmt.Errorf("%w: brainId is required for %s", ErrValidation, mode)
		}
		return nil
	}
	if strings.TrimSpace(in.BrandName) == "" {
		return fmt.Errorf("%w: brand name is required", ErrValidation)
	}
	return nil
}

// Job is the unit of orchestration tracked by the job store.
type Job struct {
	ID        string          `json:"id"`
	Status    JobStatus       `json:"status"`
	Mode      Mode            `json:"mode"`
	Input     JobInput        `json:"input"`
	Progress  Progress        `json:"progress"`
	Output    *CampaignOutput `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// JobUpdate carries the field groups to merge into a job. Nil groups are left untouched.
type JobUpdate struct {
	Status *JobStatus
	Output *CampaignOutput
	Error  *string
}

// StatusUpdate builds an update that only moves the status.
func StatusUpdate(status JobStatus) JobUpdate {
	return JobUpdate{Status: &status}
}
