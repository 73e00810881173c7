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
	dashScopeProviderName = "dashscope"
	defaultDashScopeBase  = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultDashScopeModel = "wan2.1-t2v-turbo"
)

// DashScopeOptions configures a DashScopeBackend.
type DashScopeOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// DashScopeBackend drives the DashScope asynchronous video-synthesis task API.
type DashScopeBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type dashScopeRequest struct {
	Model      string              `json:"model"`
	Input      dashScopeInput      `json:"input"`
	Parameters dashScopeParameters `json:"parameters"`
}

type dashScopeInput struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

type dashScopeParameters struct {
	Size     string `json:"size,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

type dashScopeTaskResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Code       string `json:"code"`
		Message    string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewDashScopeBackend builds a backend with defaults for unset options.
func NewDashScopeBackend(opts DashScopeOptions) *DashScopeBackend {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultDashScopeBase
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultDashScopeModel
	}
	return &DashScopeBackend{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}
}

func (d *DashScopeBackend) Name() string { return dashScopeProviderName }

func (d *DashScopeBackend) HasCredentials() bool { return d.apiKey != "" }

// Submit creates an asynchronous synthesis task and returns its id.
func (d *DashScopeBackend) Submit(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("dashscope: prompt is required")
	}
	payload := dashScopeRequest{
		Model: d.model,
		Input: dashScopeInput{
			Prompt:         prompt,
			NegativePrompt: strings.TrimSpace(opts.NegativePrompt),
		},
		Parameters: dashScopeParameters{
			Size:     sizeForAspect(opts.AspectRatio),
			Duration: opts.DurationSeconds,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dashscope: encode request: %w", err)
	}
	endpoint := d.baseURL + "/services/aigc/video-generation/video-synthesis"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dashscope: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("X-DashScope-Async", "enable")

	task, err := d.do(req)
	if err != nil {
		return "", err
	}
	taskID := strings.TrimSpace(task.Output.TaskID)
	if taskID == "" {
		return "", errors.New("dashscope: response missing task id")
	}
	d.logger.Debug().
		Str("model", d.model).
		Str("task_id", taskID).
		Str("dashscope_request_id", task.RequestID).
		Str("request_id", opts.RequestID).
		Msg("dashscope: task submitted")
	return taskID, nil
}

// Poll maps the task status onto the generation states. UNKNOWN means the
// task id is no longer retained by DashScope.
func (d *DashScopeBackend) Poll(ctx context.Context, taskID string) (generation.PollResult, error) {
	endpoint := d.baseURL + "/tasks/" + url.PathEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return generation.PollResult{}, fmt.Errorf("dashscope: build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	task, err := d.do(req)
	if err != nil {
		return generation.PollResult{}, err
	}
	out := task.Output
	switch strings.ToUpper(out.TaskStatus) {
	case "SUCCEEDED":
		return generation.PollResult{Status: generation.StatusDone, ResultURL: out.VideoURL}, nil
	case "FAILED", "CANCELED":
		msg := out.Message
		if out.Code != "" {
			msg = fmt.Sprintf("%s (%s)", out.Message, out.Code)
		}
		return generation.PollResult{Status: generation.StatusFailed, Message: strings.TrimSpace(msg)}, nil
	case "UNKNOWN":
		return generation.PollResult{Status: generation.StatusExpired, Message: "task expired or unknown"}, nil
	default:
		return generation.PollResult{Status: generation.StatusPending}, nil
	}
}

// Download fetches the generated video from its signed URL.
func (d *DashScopeBackend) Download(ctx context.Context, resultURL string) ([]byte, string, error) {
	return fetch(ctx, d.httpClient, dashScopeProviderName, resultURL, nil)
}

func (d *DashScopeBackend) do(req *http.Request) (*dashScopeTaskResponse, error) {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashscope: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw := readErrorBody(resp)
		var detail dashScopeTaskResponse
		_ = json.Unmarshal([]byte(raw), &detail)
		if resp.StatusCode == http.StatusTooManyRequests || isThrottling(detail.Code) {
			return nil, &generation.RateLimitError{Provider: dashScopeProviderName, Message: detail.Message}
		}
		if detail.Message != "" {
			return nil, fmt.Errorf("dashscope: %s (%s)", detail.Message, detail.Code)
		}
		return nil, fmt.Errorf("dashscope: status %d: %s", resp.StatusCode, raw)
	}
	var decoded dashScopeTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("dashscope: decode response: %w", err)
	}
	if decoded.Code != "" {
		if isThrottling(decoded.Code) {
			return nil, &generation.RateLimitError{Provider: dashScopeProviderName, Message: decoded.Message}
		}
		return nil, fmt.Errorf("dashscope: %s (%s)", decoded.Message, decoded.Code)
	}
	return &decoded, nil
}

func isThrottling(code string) bool {
	return strings.HasPrefix(code, "Throttling")
}

func sizeForAspect(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "9:16":
		return "720*1280"
	case "1:1":
		return "960*960"
	default:
		return "1280*720"
	}
}

var (
	_ generation.Backend    = (*DashScopeBackend)(nil)
	_ generation.Downloader = (*DashScopeBackend)(nil)
)
