package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"campaignforge/internal/providers/generation"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestOpenAIModelReturnsInlineData(t *testing.T) {
	t.Parallel()
	var captured imageRequest
	model := NewOpenAIModel(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/v1/images/generations" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("decode: %v", err)
			}
			return response(http.StatusOK, `{"data":[{"b64_json":"aGVsbG8="}]}`), nil
		})},
	})
	got, err := model.GenerateImage(context.Background(), "a poster", SizeLandscape)
	if err != nil {
		t.Fatalf("GenerateImage error: %v", err)
	}
	if got != "aGVsbG8=" {
		t.Fatalf("data = %q", got)
	}
	if captured.Size != SizeLandscape || captured.N != 1 || captured.Model != defaultOpenAIModel {
		t.Fatalf("request = %+v", captured)
	}
	if captured.ResponseFormat != "" {
		t.Fatalf("response_format = %q, want empty for gpt-image models", captured.ResponseFormat)
	}
}

func TestOpenAIModelFetchesURLResult(t *testing.T) {
	t.Parallel()
	model := NewOpenAIModel(OpenAIOptions{
		APIKey: "sk-test",
		Model:  "dall-e-3",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Method == http.MethodGet {
				return response(http.StatusOK, "png-bytes"), nil
			}
			var req imageRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.ResponseFormat != "b64_json" {
				t.Errorf("response_format = %q", req.ResponseFormat)
			}
			return response(http.StatusOK, `{"data":[{"url":"https://files.test/img.png"}]}`), nil
		})},
	})
	got, err := model.GenerateImage(context.Background(), "a poster", SizeSquare)
	if err != nil {
		t.Fatalf("GenerateImage error: %v", err)
	}
	if got != base64.StdEncoding.EncodeToString([]byte("png-bytes")) {
		t.Fatalf("data = %q", got)
	}
}

func TestOpenAIModelRateLimit(t *testing.T) {
	t.Parallel()
	model := NewOpenAIModel(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`), nil
		})},
	})
	_, err := model.GenerateImage(context.Background(), "a poster", SizeSquare)
	if !generation.IsRateLimit(err) {
		t.Fatalf("err = %v, want rate limit", err)
	}
}

func TestOpenAIModelErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewOpenAIModel(OpenAIOptions{}).GenerateImage(context.Background(), "x", SizeSquare); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	model := NewOpenAIModel(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(http.StatusBadRequest, `{"error":{"message":"safety system"}}`), nil
		})},
	})
	_, err := model.GenerateImage(context.Background(), "x", SizeSquare)
	if err == nil || err.Error() != "imagegen: openai status 400: safety system" {
		t.Fatalf("err = %v", err)
	}
}
