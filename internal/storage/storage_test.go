package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestAssetKey(t *testing.T) {
	t.Parallel()
	cases := []struct {
		kind, variant, mime, want string
	}{
		{"image", "social_post", "image/png", "generated/job-1/image/social_post.png"},
		{"video", "ad", "video/mp4", "generated/job-1/video/ad.mp4"},
		{"video", "ad", "video/mp4; codecs=avc1", "generated/job-1/video/ad.mp4"},
		{"image", "banner", "application/x-unknown", "generated/job-1/image/banner.bin"},
	}
	for _, tc := range cases {
		if got := AssetKey("job-1", tc.kind, tc.variant, tc.mime); got != tc.want {
			t.Fatalf("AssetKey(%s,%s,%s) = %q, want %q", tc.kind, tc.variant, tc.mime, got, tc.want)
		}
	}
}

func TestEnsureExtension(t *testing.T) {
	t.Parallel()
	if got := EnsureExtension("a/b", "image/jpeg"); got != "a/b.jpg" {
		t.Fatalf("got %q", got)
	}
	if got := EnsureExtension("a/b.png", "image/jpeg"); got != "a/b.png" {
		t.Fatalf("got %q", got)
	}
}

func TestFileStorePutAndServe(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	url, err := store.Put(context.Background(), "generated/job/image/banner", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if url != "http://localhost:8080/static/generated/job/image/banner.png" {
		t.Fatalf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "generated", "job", "image", "banner.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("file = %q, %v", data, err)
	}

	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generated/job/image/banner.png", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "png" {
		t.Fatalf("serve = %d %q", rec.Code, rec.Body.String())
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	for _, key := range []string{"", "../escape.png", "a/../../escape.png"} {
		if _, err := store.Put(context.Background(), key, []byte("x"), "image/png"); err == nil {
			t.Fatalf("Put(%q) succeeded, want error", key)
		}
	}
}

func TestSupabaseStorePut(t *testing.T) {
	t.Parallel()
	var gotBucket, gotPath, gotType string
	store := &SupabaseStore{
		bucket:    "campaign-assets",
		publicURL: "https://proj.supabase.co/storage/v1/object/public/campaign-assets",
		upload: func(bucket, path string, data []byte, contentType string) error {
			gotBucket, gotPath, gotType = bucket, path, contentType
			return nil
		},
	}
	url, err := store.Put(context.Background(), "generated/j/video/ad.mp4", []byte("v"), "video/mp4")
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if url != "https://proj.supabase.co/storage/v1/object/public/campaign-assets/generated/j/video/ad.mp4" {
		t.Fatalf("url = %q", url)
	}
	if gotBucket != "campaign-assets" || gotPath != "generated/j/video/ad.mp4" || gotType != "video/mp4" {
		t.Fatalf("upload = %s %s %s", gotBucket, gotPath, gotType)
	}

	store.upload = func(string, string, []byte, string) error { return errors.New("bucket not found") }
	if _, err := store.Put(context.Background(), "k.mp4", []byte("v"), "video/mp4"); err == nil {
		t.Fatalf("expected upload error")
	}
}

func TestNewSupabaseStoreValidates(t *testing.T) {
	t.Parallel()
	if _, err := NewSupabaseStore(SupabaseOptions{Bucket: "b"}); err == nil {
		t.Fatalf("expected error without url and key")
	}
	if _, err := NewSupabaseStore(SupabaseOptions{URL: "https://x.supabase.co", ServiceKey: "k"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
