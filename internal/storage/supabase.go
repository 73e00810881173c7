package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseOptions configures a SupabaseStore.
type SupabaseOptions struct {
	URL        string
	ServiceKey string
	Bucket     string
}

type uploadFunc func(bucket, path string, data []byte, contentType string) error

// SupabaseStore uploads objects to a public Supabase Storage bucket.
type SupabaseStore struct {
	bucket    string
	publicURL string
	upload    uploadFunc
}

// NewSupabaseStore builds the Supabase client and returns a store for bucket.
func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	key := strings.TrimSpace(opts.ServiceKey)
	bucket := strings.TrimSpace(opts.Bucket)
	if baseURL == "" || key == "" {
		return nil, errors.New("storage: supabase url and service key are required")
	}
	if bucket == "" {
		return nil, errors.New("storage: supabase bucket is required")
	}
	client, err := supabase.NewClient(baseURL, key, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: supabase client: %w", err)
	}
	return newSupabaseStore(baseURL, bucket, client.Storage), nil
}

func newSupabaseStore(baseURL, bucket string, client *storage_go.Client) *SupabaseStore {
	return &SupabaseStore{
		bucket:    bucket,
		publicURL: fmt.Sprintf("%s/storage/v1/object/public/%s", baseURL, bucket),
		upload: func(bucket, path string, data []byte, contentType string) error {
			upsert := true
			_, err := client.UploadFile(bucket, path, bytes.NewReader(data), storage_go.FileOptions{
				ContentType: &contentType,
				Upsert:      &upsert,
			})
			return err
		},
	}
}

// Put uploads data and returns the object's public URL. The storage client
// has no context support, so cancellation is only checked before the upload.
func (s *SupabaseStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(EnsureExtension(key, contentType))
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.upload(s.bucket, cleanKey, data, contentType); err != nil {
		return "", fmt.Errorf("storage: supabase upload %s: %w", cleanKey, err)
	}
	return joinURL(s.publicURL, cleanKey), nil
}

var _ Store = (*SupabaseStore)(nil)
