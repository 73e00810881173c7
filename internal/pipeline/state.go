// Package pipeline implements the campaign generation stages and the graph
// that sequences them.
package pipeline

import (
	"context"

	"campaignforge/internal/domain"
)

// State is the accumulated record a job carries through the graph. Fields a
// mode does not use stay at their zero value.
type State struct {
	JobID    string
	Mode     domain.Mode
	Input    domain.JobInput
	Brief    *domain.CampaignBrief
	Creative *domain.CreativePrompts
	AdImages []domain.AdImage
	VideoURL string
}

// Patch is what one stage returns. A failing stage sets Err and leaves its
// output field nil.
type Patch struct {
	Brief    *domain.CampaignBrief
	Creative *domain.CreativePrompts
	AdImages []domain.AdImage
	VideoURL *string
	Err      error
}

// Stage is one unit of work in the graph.
type Stage func(ctx context.Context, st State) Patch

// Failed builds a patch that only carries err.
func Failed(err error) Patch {
	return Patch{Err: err}
}

// Apply merges p into a copy of s. Err is not part of the state; callers
// inspect it on the patch.
func (s State) Apply(p Patch) State {
	out := s
	if p.Brief != nil {
		brief := *p.Brief
		out.Brief = &brief
	}
	if p.Creative != nil {
		creative := *p.Creative
		creative.Scenes = append([]domain.VideoSceneSpec(nil), p.Creative.Scenes...)
		out.Creative = &creative
	}
	if p.AdImages != nil {
		out.AdImages = append([]domain.AdImage(nil), p.AdImages...)
	}
	if p.VideoURL != nil {
		out.VideoURL = *p.VideoURL
	}
	return out
}
