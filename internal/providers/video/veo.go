package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campaignforge/internal/infra"
	"campaignforge/internal/providers/generation"
)

const (
	veoProviderName   = "veo"
	defaultVeoModel   = "veo-3.0-fast-generate-001"
	defaultGeminiBase = "https://generativelanguage.googleapis.com/v1beta"
)

// VeoOptions configures a VeoBackend.
type VeoOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// VeoBackend drives Veo through the Gemini API long-running operations.
type VeoBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type veoInstance struct {
	Prompt string `json:"prompt"`
}

type veoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type veoRequest struct {
	Instances  []veoInstance  `json:"instances"`
	Parameters *veoParameters `json:"parameters,omitempty"`
}

type veoStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type veoOperation struct {
	Name     string     `json:"name"`
	Done     bool       `json:"done"`
	Error    *veoStatus `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type veoErrorResponse struct {
	Error veoStatus `json:"error"`
}

// NewVeoBackend builds a backend with defaults for unset options.
func NewVeoBackend(opts VeoOptions) *VeoBackend {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBase
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoBackend{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}
}

func (v *VeoBackend) Name() string { return veoProviderName }

func (v *VeoBackend) HasCredentials() bool { return v.apiKey != "" }

// Submit starts a predictLongRunning operation and returns its name.
func (v *VeoBackend) Submit(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("veo: prompt is required")
	}
	aspect := strings.TrimSpace(opts.AspectRatio)
	if aspect == "" {
		aspect = defaultAspectRatio
	}
	payload := veoRequest{
		Instances: []veoInstance{{Prompt: prompt}},
		Parameters: &veoParameters{
			AspectRatio:     aspect,
			NegativePrompt:  strings.TrimSpace(opts.NegativePrompt),
			DurationSeconds: opts.DurationSeconds,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("veo: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", v.baseURL, url.PathEscape(v.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("veo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", v.apiKey)

	var op veoOperation
	if err := v.do(req, &op); err != nil {
		return "", err
	}
	if strings.TrimSpace(op.Name) == "" {
		return "", errors.New("veo: response missing operation name")
	}
	v.logger.Debug().
		Str("model", v.model).
		Str("operation", op.Name).
		Str("request_id", opts.RequestID).
		Msg("veo: operation started")
	return op.Name, nil
}

// Poll fetches the operation state.
func (v *VeoBackend) Poll(ctx context.Context, operation string) (generation.PollResult, error) {
	endpoint := v.baseURL + "/" + strings.TrimLeft(operation, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return generation.PollResult{}, fmt.Errorf("veo: build poll request: %w", err)
	}
	req.Header.Set("x-goog-api-key", v.apiKey)

	var op veoOperation
	if err := v.do(req, &op); err != nil {
		return generation.PollResult{}, err
	}
	if !op.Done {
		return generation.PollResult{Status: generation.StatusPending}, nil
	}
	if op.Error != nil {
		return generation.PollResult{Status: generation.StatusFailed, Message: op.Error.Message}, nil
	}
	if op.Response == nil {
		return generation.PollResult{Status: generation.StatusFailed, Message: "operation finished without a response"}, nil
	}
	gen := op.Response.GenerateVideoResponse
	for _, sample := range gen.GeneratedSamples {
		if uri := strings.TrimSpace(sample.Video.URI); uri != "" {
			return generation.PollResult{Status: generation.StatusDone, ResultURL: uri}, nil
		}
	}
	msg := "no video returned"
	if len(gen.RAIMediaFilteredReasons) > 0 {
		msg = "filtered: " + strings.Join(gen.RAIMediaFilteredReasons, "; ")
	}
	return generation.PollResult{Status: generation.StatusFailed, Message: msg}, nil
}

// Download fetches a generated video. Gemini file URIs require the API key.
func (v *VeoBackend) Download(ctx context.Context, resultURL string) ([]byte, string, error) {
	header := http.Header{}
	header.Set("x-goog-api-key", v.apiKey)
	return fetch(ctx, v.httpClient, veoProviderName, resultURL, header)
}

func (v *VeoBackend) do(req *http.Request, out any) error {
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("veo: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw := readErrorBody(resp)
		message := raw
		var apiErr veoErrorResponse
		if err := json.Unmarshal([]byte(raw), &apiErr); err == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
			return &generation.RateLimitError{Provider: veoProviderName, Message: message}
		}
		return fmt.Errorf("veo: status %d: %s", resp.StatusCode, message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("veo: decode response: %w", err)
	}
	return nil
}

var (
	_ generation.Backend    = (*VeoBackend)(nil)
	_ generation.Downloader = (*VeoBackend)(nil)
)
