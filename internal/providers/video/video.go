// Package video holds the asynchronous text-to-video backends. Each backend
// implements generation.Backend so the submit and poll loop lives in one place.
package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultAspectRatio = "16:9"
	defaultContentType = "video/mp4"
	maxErrorBody       = 64 << 10
)

func fetch(ctx context.Context, client *http.Client, provider, target string, header http.Header) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s: build download request: %w", provider, err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%s: download video: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", fmt.Errorf("%s: download status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%s: read video: %w", provider, err)
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = defaultContentType
	}
	return data, contentType, nil
}

func readErrorBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(data))
}
