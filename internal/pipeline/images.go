package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"campaignforge/internal/domain"
	"campaignforge/internal/imagegen"
	"campaignforge/internal/providers/generation"
	"campaignforge/internal/storage"
)

const imageStageName = "image generation"

type imageVariant struct {
	Type       domain.AdImageType
	Platform   string
	VisualType string
	Size       string
}

var imageVariants = []imageVariant{
	{Type: domain.AdImageSocialPost, Platform: "instagram", VisualType: "feed", Size: imagegen.SizeSquare},
	{Type: domain.AdImageBanner, Platform: "web", VisualType: "banner", Size: imagegen.SizeLandscape},
	{Type: domain.AdImageProductFocus, Platform: "catalog", VisualType: "product", Size: imagegen.SizePortrait},
}

// ImageGeneration renders the three ad variants concurrently. The first
// failure cancels the others and no partial set is returned.
func (s *Stages) ImageGeneration(ctx context.Context, st State) Patch {
	if st.Creative == nil || st.Creative.ImagePrompt == "" {
		return Failed(fmt.Errorf("%s: image prompt is required", imageStageName))
	}
	if !s.ImagesReady() {
		return Failed(fmt.Errorf("%s: %w: image model or asset storage is not configured", imageStageName, domain.ErrConfiguration))
	}

	images := make([]domain.AdImage, len(imageVariants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range imageVariants {
		i, v := i, v
		g.Go(func() error {
			url, err := s.renderVariant(gctx, st, v)
			if err != nil {
				return err
			}
			images[i] = domain.AdImage{Type: v.Type, URL: url}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Failed(err)
	}
	return Patch{AdImages: images}
}

func (s *Stages) renderVariant(ctx context.Context, st State, v imageVariant) (string, error) {
	prompt := buildVariantPrompt(st.Creative.ImagePrompt, st.Brief, v)
	res := generation.Retry(ctx, generation.RetryOptions{
		Stage:   imageStageName,
		Backoff: s.backoff,
		Logger:  s.logger,
	}, func(ctx context.Context) (string, error) {
		return s.images.GenerateImage(ctx, prompt, v.Size)
	})
	if !res.OK() {
		return "", res.Err
	}
	data, err := base64.StdEncoding.DecodeString(res.Value)
	if err != nil {
		return "", fmt.Errorf("%s: decode %s: %w", imageStageName, v.Type, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%s: %s: empty image", imageStageName, v.Type)
	}
	contentType := http.DetectContentType(data)
	key := storage.AssetKey(st.JobID, string(domain.AssetImage), string(v.Type), contentType)
	url, err := s.assets.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%s: store %s: %w", imageStageName, v.Type, err)
	}
	s.logger.Debug().
		Str("job_id", st.JobID).
		Str("variant", string(v.Type)).
		Str("url", url).
		Msg("pipeline: ad image stored")
	return url, nil
}
