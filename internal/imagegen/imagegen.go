// Package imagegen produces still images from text prompts.
package imagegen

import (
	"context"
	"errors"
)

// Sizes understood by the image model.
const (
	SizeSquare    = "1024x1024"
	SizeLandscape = "1536x1024"
	SizePortrait  = "1024x1536"
)

// ErrMissingCredentials is returned when no API key is configured.
var ErrMissingCredentials = errors.New("imagegen: api key is not configured")

// Model generates one image and returns it base64 encoded.
type Model interface {
	Name() string
	HasCredentials() bool
	GenerateImage(ctx context.Context, prompt, size string) (string, error)
}
