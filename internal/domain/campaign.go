package domain

import "time"

// CampaignBrief is the strategist's structured output.
type CampaignBrief struct {
	Objective        string `json:"objective"`
	TargetAudience   string `json:"targetAudience"`
	FunnelStage      string `json:"funnelStage"`
	KeyMessage       string `json:"keyMessage"`
	ValueProposition string `json:"valueProposition"`
	EmotionalHook    string `json:"emotionalHook"`
	PrimaryChannel   string `json:"primaryChannel"`
	VisualStyle      string `json:"visualStyle"`
	CallToAction     string `json:"callToAction"`
	CampaignConcept  string `json:"campaignConcept"`
}

// SceneBeat is one of the canonical video beats.
type SceneBeat string

const (
	BeatHook    SceneBeat = "hook"
	BeatProblem SceneBeat = "problem"
	BeatValue   SceneBeat = "value"
	BeatProof   SceneBeat = "proof"
	BeatCTA     SceneBeat = "cta"
)

// SceneBeats lists the beats in playback order.
var SceneBeats = []SceneBeat{BeatHook, BeatProblem, BeatValue, BeatProof, BeatCTA}

// VideoSceneSpec describes one beat of the video plan.
type VideoSceneSpec struct {
	Beat            SceneBeat `json:"beat"`
	Description     string    `json:"description"`
	VisualDirection string    `json:"visualDirection"`
	CameraStyle     string    `json:"cameraStyle"`
	Lighting        string    `json:"lighting"`
	EmotionalTone   string    `json:"emotionalTone"`
}

// CreativePrompts is the creative-prompt builder's output.
type CreativePrompts struct {
	Title       string           `json:"title"`
	ImagePrompt string           `json:"imagePrompt"`
	Scenes      []VideoSceneSpec `json:"scenes"`
}

// Brain is the cached creative direction that lets a video-fast job skip the
// strategy and creative stages. Its ID is the originating job id.
type Brain struct {
	ID        string          `json:"id"`
	BrandName string          `json:"brandName"`
	Brief     CampaignBrief   `json:"brief"`
	Creative  CreativePrompts `json:"creative"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the brain is past its TTL at now.
func (b *Brain) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt)
}

// AdImageType enumerates the image variants produced per run.
type AdImageType string

const (
	AdImageSocialPost   AdImageType = "social_post"
	AdImageBanner       AdImageType = "banner"
	AdImageProductFocus AdImageType = "product_focus"
)

// AdImage is one generated, stored ad image.
type AdImage struct {
	Type AdImageType `json:"type"`
	URL  string      `json:"url"`
}

// CampaignOutput is the externally visible result of a job.
type CampaignOutput struct {
	Brief       *CampaignBrief `json:"brief,omitempty"`
	AdImages    []AdImage      `json:"adImages"`
	VideoURL    string         `json:"videoUrl,omitempty"`
	PosterError string         `json:"posterError,omitempty"`
	VideoError  string         `json:"videoError,omitempty"`
	BrainID     string         `json:"brainId,omitempty"`
	Brain       *Brain         `json:"brain,omitempty"`
}
