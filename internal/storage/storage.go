// Package storage persists generated asset bytes and hands back a URL the
// client can fetch them from.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Store writes one object and returns its retrievable URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AssetKey lays out generated assets as generated/<jobID>/<kind>/<variant><ext>.
func AssetKey(jobID, kind, variant, contentType string) string {
	ext := ExtensionForMIME(contentType)
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("generated/%s/%s/%s%s", jobID, kind, variant, ext)
}

// EnsureExtension appends the extension matching mime when key has none.
func EnsureExtension(key, mime string) string {
	if key == "" {
		return key
	}
	expected := ExtensionForMIME(mime)
	if expected == "" {
		return key
	}
	if filepath.Ext(key) == "" {
		return key + expected
	}
	return key
}

// ExtensionForMIME maps the content types produced by the generators.
func ExtensionForMIME(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ""
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
