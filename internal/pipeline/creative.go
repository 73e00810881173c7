package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"campaignforge/internal/domain"
	"campaignforge/internal/providers/textgen"
)

type creativePayload struct {
	Title       string                  `json:"title"`
	ImagePrompt string                  `json:"imagePrompt"`
	Scenes      []domain.VideoSceneSpec `json:"scenes"`
}

type beatStyle struct {
	camera, lighting, tone string
}

var fallbackBeatStyles = map[domain.SceneBeat]beatStyle{
	domain.BeatHook:    {camera: "fast push-in, handheld energy", lighting: "high-contrast natural light", tone: "curious"},
	domain.BeatProblem: {camera: "static medium shot", lighting: "muted, slightly cool", tone: "relatable frustration"},
	domain.BeatValue:   {camera: "smooth dolly around the product", lighting: "warm key light with soft fill", tone: "relief"},
	domain.BeatProof:   {camera: "close-up details, shallow depth of field", lighting: "bright and even", tone: "confident"},
	domain.BeatCTA:     {camera: "slow pull-back to hero frame", lighting: "warm golden glow", tone: "inspired"},
}

// CreativePromptBuilder turns the brief into an image prompt and a five-beat
// scene plan. When the model fails or under-delivers it falls back to a plan
// derived from the brief, so it only fails when there is no brief.
func (s *Stages) CreativePromptBuilder(ctx context.Context, st State) Patch {
	if st.Brief == nil {
		return Failed(errors.New("creative prompt builder: brief is required"))
	}
	brief := *st.Brief
	brand := st.Input.BrandName
	fallback := FallbackCreative(brand, brief)

	if !s.TextReady() {
		return Patch{Creative: &fallback}
	}
	raw, err := s.text.Complete(ctx, textgen.Request{
		System:      creativeSystemPrompt,
		User:        buildCreativePrompt(brand, brief),
		JSONMode:    true,
		Temperature: 0.8,
	})
	if err != nil {
		s.logFallback(st.JobID, "model_error", err)
		return Patch{Creative: &fallback}
	}
	payload, err := textgen.DecodeJSON[creativePayload](raw)
	if err != nil {
		s.logFallback(st.JobID, "parse_payload", err)
		return Patch{Creative: &fallback}
	}
	scenes, ok := normalizeScenes(payload.Scenes)
	if !ok {
		s.logFallback(st.JobID, "too_few_scenes", fmt.Errorf("got %d scenes", len(payload.Scenes)))
		return Patch{Creative: &fallback}
	}
	creative := domain.CreativePrompts{
		Title:       coalesce(payload.Title, fallback.Title),
		ImagePrompt: coalesce(payload.ImagePrompt, fallback.ImagePrompt),
		Scenes:      scenes,
	}
	return Patch{Creative: &creative}
}

func (s *Stages) logFallback(jobID, reason string, err error) {
	s.logger.Warn().
		Err(err).
		Str("job_id", jobID).
		Str("reason", reason).
		Msg("pipeline: using fallback creative plan")
}

// normalizeScenes returns exactly five scenes in canonical beat order. Scenes
// are matched by beat when the model labelled all five, otherwise the first
// five are taken in order and relabelled.
func normalizeScenes(in []domain.VideoSceneSpec) ([]domain.VideoSceneSpec, bool) {
	var usable []domain.VideoSceneSpec
	for _, sc := range in {
		if strings.TrimSpace(sc.Description) != "" {
			usable = append(usable, sc)
		}
	}
	if len(usable) < len(domain.SceneBeats) {
		return nil, false
	}
	byBeat := make(map[domain.SceneBeat]domain.VideoSceneSpec, len(usable))
	for _, sc := range usable {
		beat := domain.SceneBeat(strings.ToLower(strings.TrimSpace(string(sc.Beat))))
		if _, seen := byBeat[beat]; !seen {
			byBeat[beat] = sc
		}
	}
	out := make([]domain.VideoSceneSpec, len(domain.SceneBeats))
	labelled := true
	for i, beat := range domain.SceneBeats {
		sc, ok := byBeat[beat]
		if !ok {
			labelled = false
			break
		}
		out[i] = sc
	}
	if !labelled {
		copy(out, usable[:len(domain.SceneBeats)])
	}
	for i := range out {
		out[i].Beat = domain.SceneBeats[i]
		out[i].Description = strings.TrimSpace(out[i].Description)
	}
	return out, true
}

// FallbackCreative derives a complete creative plan from the brief alone.
func FallbackCreative(brand string, brief domain.CampaignBrief) domain.CreativePrompts {
	name := titleCase(brand)
	if name == "" {
		name = "Our Brand"
	}
	style := coalesce(brief.VisualStyle, "clean, modern commercial photography")
	descriptions := map[domain.SceneBeat]string{
		domain.BeatHook:    coalesce(brief.EmotionalHook, brief.KeyMessage),
		domain.BeatProblem: brief.KeyMessage,
		domain.BeatValue:   coalesce(brief.ValueProposition, brief.KeyMessage),
		domain.BeatProof:   coalesce(brief.CampaignConcept, brief.ValueProposition, brief.KeyMessage),
		domain.BeatCTA:     coalesce(brief.CallToAction, brief.KeyMessage),
	}
	scenes := make([]domain.VideoSceneSpec, 0, len(domain.SceneBeats))
	for _, beat := range domain.SceneBeats {
		look := fallbackBeatStyles[beat]
		scenes = append(scenes, domain.VideoSceneSpec{
			Beat:            beat,
			Description:     descriptions[beat],
			VisualDirection: fmt.Sprintf("%s, featuring %s", style, name),
			CameraStyle:     look.camera,
			Lighting:        look.lighting,
			EmotionalTone:   look.tone,
		})
	}

	title := name
	if concept := coalesce(brief.CampaignConcept, brief.KeyMessage); concept != "" {
		title = fmt.Sprintf("%s: %s", name, concept)
	}
	prompt := fmt.Sprintf("Advertising photograph for %s. %s. Style: %s.", name, coalesce(brief.ValueProposition, brief.KeyMessage), style)
	if brief.TargetAudience != "" {
		prompt += fmt.Sprintf(" Speaks to %s.", brief.TargetAudience)
	}
	return domain.CreativePrompts{Title: title, ImagePrompt: prompt, Scenes: scenes}
}

func titleCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.Und).String(s)
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
