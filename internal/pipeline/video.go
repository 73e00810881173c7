package pipeline

import (
	"context"
	"fmt"

	"campaignforge/internal/domain"
	"campaignforge/internal/providers/generation"
	"campaignforge/internal/storage"
)

const (
	videoStageName   = "video generation"
	videoAssetName   = "ad"
	videoAspectRatio = "16:9"
)

// VideoGeneration renders one clip from the scene plan. When the backend can
// download its result and an asset store is configured, the bytes are copied
// into storage so the returned URL does not depend on provider retention.
func (s *Stages) VideoGeneration(ctx context.Context, st State) Patch {
	if st.Creative == nil || len(st.Creative.Scenes) == 0 {
		return Failed(fmt.Errorf("%s: scene plan is required", videoStageName))
	}
	if !s.VideoReady() {
		return Failed(fmt.Errorf("%s: %w: video provider is not configured", videoStageName, domain.ErrConfiguration))
	}

	res := s.video.Generate(ctx, buildVideoPrompt(*st.Creative, st.Brief), generation.Options{
		AspectRatio:     videoAspectRatio,
		DurationSeconds: s.videoDuration,
		NegativePrompt:  s.videoNegative,
		RequestID:       st.JobID,
	})
	if !res.OK() {
		return Failed(res.Err)
	}
	url := res.Value

	downloader, ok := s.video.Backend().(generation.Downloader)
	if ok && s.assets != nil {
		data, contentType, err := downloader.Download(ctx, url)
		if err != nil {
			return Failed(fmt.Errorf("%s: %w", videoStageName, err))
		}
		key := storage.AssetKey(st.JobID, string(domain.AssetVideo), videoAssetName, contentType)
		stored, err := s.assets.Put(ctx, key, data, contentType)
		if err != nil {
			return Failed(fmt.Errorf("%s: store video: %w", videoStageName, err))
		}
		url = stored
	}
	s.logger.Debug().
		Str("job_id", st.JobID).
		Str("url", url).
		Msg("pipeline: video ready")
	return Patch{VideoURL: &url}
}
