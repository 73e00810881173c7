package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campaignforge/internal/domain"
	"campaignforge/internal/providers/textgen"
)

// Strategist asks the text model for a CampaignBrief.
func (s *Stages) Strategist(ctx context.Context, st State) Patch {
	brand := strings.TrimSpace(st.Input.BrandName)
	if brand == "" {
		return Failed(fmt.Errorf("strategist: %w: brand name is required", domain.ErrValidation))
	}
	if !s.TextReady() {
		return Failed(fmt.Errorf("strategist: %w: text model is not configured", domain.ErrConfiguration))
	}

	raw, err := s.text.Complete(ctx, textgen.Request{
		System:      strategistSystemPrompt,
		User:        buildStrategistPrompt(st.Input),
		JSONMode:    true,
		Temperature: 0.6,
	})
	if err != nil {
		return Failed(fmt.Errorf("strategist: %w", err))
	}
	brief, err := parseBrief(raw)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", st.JobID).
			Int("response_len", len(raw)).
			Msg("pipeline: strategist returned an unusable brief")
		return Failed(fmt.Errorf("strategist: %w", err))
	}
	return Patch{Brief: &brief}
}

func parseBrief(raw string) (domain.CampaignBrief, error) {
	brief, err := textgen.DecodeJSON[domain.CampaignBrief](raw)
	if err != nil {
		return domain.CampaignBrief{}, fmt.Errorf("parse brief: %w", err)
	}
	brief = trimBrief(brief)
	if brief.KeyMessage == "" || brief.CallToAction == "" {
		return domain.CampaignBrief{}, errors.New("parse brief: keyMessage and callToAction are required")
	}
	return brief, nil
}

func trimBrief(b domain.CampaignBrief) domain.CampaignBrief {
	return domain.CampaignBrief{
		Objective:        strings.TrimSpace(b.Objective),
		TargetAudience:   strings.TrimSpace(b.TargetAudience),
		FunnelStage:      strings.TrimSpace(b.FunnelStage),
		KeyMessage:       strings.TrimSpace(b.KeyMessage),
		ValueProposition: strings.TrimSpace(b.ValueProposition),
		EmotionalHook:    strings.TrimSpace(b.EmotionalHook),
		PrimaryChannel:   strings.TrimSpace(b.PrimaryChannel),
		VisualStyle:      strings.TrimSpace(b.VisualStyle),
		CallToAction:     strings.TrimSpace(b.CallToAction),
		CampaignConcept:  strings.TrimSpace(b.CampaignConcept),
	}
}
