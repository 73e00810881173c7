package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"campaignforge/internal/infra"
	"campaignforge/internal/providers/generation"
)

const (
	openAIProviderName   = "openai"
	defaultOpenAIModel   = "gpt-image-1"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	openAIDefaultTimeout = 3 * time.Minute
)

// OpenAIOptions configures an OpenAIModel.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// OpenAIModel calls the OpenAI images API.
type OpenAIModel struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	logger       *infra.Logger
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIModel builds an image model with defaults for unset options.
func NewOpenAIModel(opts OpenAIOptions) *OpenAIModel {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIModel{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

func (m *OpenAIModel) Name() string { return openAIProviderName }

func (m *OpenAIModel) HasCredentials() bool { return m.apiKey != "" }

// GenerateImage requests a single image. Models that answer with a hosted URL
// instead of inline data are fetched and encoded so callers always get base64.
func (m *OpenAIModel) GenerateImage(ctx context.Context, prompt, size string) (string, error) {
	if !m.HasCredentials() {
		return "", ErrMissingCredentials
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("imagegen: prompt is required")
	}
	payload := imageRequest{
		Model:  m.model,
		Prompt: prompt,
		N:      1,
		Size:   strings.TrimSpace(size),
	}
	// gpt-image models always return b64_json and reject the parameter.
	if strings.HasPrefix(m.model, "dall-e") {
		payload.ResponseFormat = "b64_json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("imagegen: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("imagegen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	if m.organization != "" {
		req.Header.Set("OpenAI-Organization", m.organization)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagegen: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("imagegen: decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return "", errors.New("imagegen: response contained no images")
	}
	m.logger.Debug().
		Str("model", m.model).
		Str("size", payload.Size).
		Dur("latency", time.Since(start)).
		Msg("imagegen: image generated")

	item := out.Data[0]
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		return b64, nil
	}
	if u := strings.TrimSpace(item.URL); u != "" {
		return m.fetchAsBase64(ctx, u)
	}
	return "", errors.New("imagegen: image has neither data nor url")
}

func (m *OpenAIModel) fetchAsBase64(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("imagegen: build download: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagegen: download image: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("imagegen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("imagegen: read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := strings.TrimSpace(string(data))
	var apiErr errorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &generation.RateLimitError{Provider: openAIProviderName, Message: message}
	}
	if message == "" {
		return fmt.Errorf("imagegen: openai status %d", resp.StatusCode)
	}
	return fmt.Errorf("imagegen: openai status %d: %s", resp.StatusCode, message)
}

var _ Model = (*OpenAIModel)(nil)
