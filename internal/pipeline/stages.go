package pipeline

import (
	"strings"
	"time"

	"campaignforge/internal/imagegen"
	"campaignforge/internal/infra"
	"campaignforge/internal/providers/generation"
	"campaignforge/internal/providers/textgen"
	"campaignforge/internal/storage"
)

const defaultRateLimitBackoff = 20 * time.Second

// Options wires the external collaborators into the stages. Nil
// collaborators make the stages that need them fail with a configuration
// error.
type Options struct {
	Text   textgen.Completer
	Images imagegen.Model
	Video  *generation.Client
	Assets storage.Store
	// RateLimitBackoff is the wait before the single retry of a rate-limited
	// image call.
	RateLimitBackoff time.Duration
	// VideoDurationSeconds is passed to the video backend when positive.
	VideoDurationSeconds int
	// VideoNegativePrompt lists content the video backend should avoid.
	VideoNegativePrompt string
	Logger              *infra.Logger
}

// Stages holds the dependencies shared by the stage functions.
type Stages struct {
	text          textgen.Completer
	images        imagegen.Model
	video         *generation.Client
	assets        storage.Store
	backoff       time.Duration
	videoDuration int
	videoNegative string
	logger        *infra.Logger
}

// NewStages returns the stage set.
func NewStages(opts Options) *Stages {
	backoff := opts.RateLimitBackoff
	if backoff <= 0 {
		backoff = defaultRateLimitBackoff
	}
	return &Stages{
		text:          opts.Text,
		images:        opts.Images,
		video:         opts.Video,
		assets:        opts.Assets,
		backoff:       backoff,
		videoDuration: opts.VideoDurationSeconds,
		videoNegative: strings.TrimSpace(opts.VideoNegativePrompt),
		logger:        infra.LoggerOrDiscard(opts.Logger),
	}
}

// TextReady reports whether the text model is configured.
func (s *Stages) TextReady() bool {
	return s.text != nil && s.text.HasCredentials()
}

// ImagesReady reports whether the image model and asset store are configured.
func (s *Stages) ImagesReady() bool {
	return s.images != nil && s.images.HasCredentials() && s.assets != nil
}

// VideoReady reports whether the video backend is configured.
func (s *Stages) VideoReady() bool {
	return s.video != nil && s.video.HasCredentials()
}
