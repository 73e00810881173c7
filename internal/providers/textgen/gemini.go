package textgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"campaignforge/internal/providers/generation"
)

const (
	geminiProviderName = "gemini"
	defaultGeminiModel = "gemini-2.5-flash"
)

// GeminiOptions configures a GeminiCompleter.
type GeminiOptions struct {
	APIKey string
	Model  string
}

type generateFunc func(ctx context.Context, req Request) (*genai.GenerateContentResponse, error)

// GeminiCompleter calls Gemini through the generative-ai-go SDK.
type GeminiCompleter struct {
	client   *genai.Client
	model    string
	generate generateFunc
}

// NewGeminiCompleter opens an SDK client when an API key is configured. With
// no key the completer is returned without a client and HasCredentials is false.
func NewGeminiCompleter(ctx context.Context, opts GeminiOptions) (*GeminiCompleter, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	g := &GeminiCompleter{model: model}
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	g.client = client
	g.generate = g.sdkGenerate
	return g, nil
}

func (g *GeminiCompleter) Name() string { return geminiProviderName }

func (g *GeminiCompleter) HasCredentials() bool { return g.generate != nil }

// Close releases the SDK client.
func (g *GeminiCompleter) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Complete runs one GenerateContent call and concatenates the text parts of
// the first candidate.
func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if !g.HasCredentials() {
		return "", ErrMissingCredentials
	}
	resp, err := g.generate(ctx, req)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *GeminiCompleter) sdkGenerate(ctx context.Context, req Request) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetCandidateCount(1)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}
	if system := strings.TrimSpace(req.System); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return model.GenerateContent(ctx, genai.Text(req.User))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &generation.RateLimitError{Provider: geminiProviderName, Message: apiErr.Message}
	}
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "ResourceExhausted") {
		return &generation.RateLimitError{Provider: geminiProviderName, Message: msg}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}

var _ Completer = (*GeminiCompleter)(nil)
