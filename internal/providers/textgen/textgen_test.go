package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"campaignforge/internal/providers/generation"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestDecodeJSONToleratesFencesAndProse(t *testing.T) {
	t.Parallel()
	type payload struct {
		KeyMessage string `json:"keyMessage"`
	}
	cases := []struct {
		name string
		raw  string
	}{
		{name: "plain", raw: `{"keyMessage":"fresh"}`},
		{name: "fenced", raw: "```json\n{\"keyMessage\":\"fresh\"}\n```"},
		{name: "prose", raw: "Here is the brief:\n{\"keyMessage\":\"fresh\"}\nHope it helps."},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeJSON[payload](tc.raw)
			if err != nil {
				t.Fatalf("DecodeJSON error: %v", err)
			}
			if got.KeyMessage != "fresh" {
				t.Fatalf("KeyMessage = %q, want %q", got.KeyMessage, "fresh")
			}
		})
	}
}

func TestDecodeJSONRejectsText(t *testing.T) {
	t.Parallel()
	if _, err := DecodeJSON[map[string]any]("no json here"); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", err)
	}
	if _, err := DecodeJSON[map[string]any]("{broken"); err == nil {
		t.Fatalf("expected error for truncated JSON")
	}
}

func TestOpenAICompleterSendsJSONMode(t *testing.T) {
	t.Parallel()
	var captured openAIChatRequest
	var auth string
	completer := NewOpenAICompleter(OpenAIOptions{
		APIKey:  "sk-test",
		BaseURL: "https://llm.test/v1/",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.String() != "https://llm.test/v1/chat/completions" {
				t.Errorf("url = %s", r.URL)
			}
			auth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("decode body: %v", err)
			}
			return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":" {\"ok\":true} "}}]}`), nil
		})},
	})
	text, err := completer.Complete(context.Background(), Request{System: "sys", User: "hello", JSONMode: true})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if text != `{"ok":true}` {
		t.Fatalf("text = %q", text)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", auth)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Fatalf("response_format = %+v, want json_object", captured.ResponseFormat)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "hello" {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if captured.Model != defaultOpenAIModel {
		t.Fatalf("model = %q, want %q", captured.Model, defaultOpenAIModel)
	}
}

func TestOpenAICompleterMapsTooManyRequests(t *testing.T) {
	t.Parallel()
	completer := NewOpenAICompleter(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`), nil
		})},
	})
	_, err := completer.Complete(context.Background(), Request{User: "hi"})
	if !generation.IsRateLimit(err) {
		t.Fatalf("err = %v, want rate limit", err)
	}
	if !strings.Contains(err.Error(), "Rate limit reached") {
		t.Fatalf("err = %q", err)
	}
}

func TestOpenAICompleterStatusError(t *testing.T) {
	t.Parallel()
	completer := NewOpenAICompleter(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnauthorized, `{"error":{"message":"Incorrect API key"}}`), nil
		})},
	})
	_, err := completer.Complete(context.Background(), Request{User: "hi"})
	if err == nil || generation.IsRateLimit(err) {
		t.Fatalf("err = %v, want plain status error", err)
	}
	if err.Error() != "openai: status 401: Incorrect API key" {
		t.Fatalf("err = %q", err)
	}
}

func TestOpenAICompleterEmptyChoices(t *testing.T) {
	t.Parallel()
	completer := NewOpenAICompleter(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"choices":[]}`), nil
		})},
	})
	if _, err := completer.Complete(context.Background(), Request{User: "hi"}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestCompletersWithoutKey(t *testing.T) {
	t.Parallel()
	openai := NewOpenAICompleter(OpenAIOptions{})
	if openai.HasCredentials() {
		t.Fatalf("openai HasCredentials = true, want false")
	}
	if _, err := openai.Complete(context.Background(), Request{User: "hi"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("openai err = %v", err)
	}
	gemini, err := NewGeminiCompleter(context.Background(), GeminiOptions{})
	if err != nil {
		t.Fatalf("NewGeminiCompleter error: %v", err)
	}
	if gemini.HasCredentials() {
		t.Fatalf("gemini HasCredentials = true, want false")
	}
	if _, err := gemini.Complete(context.Background(), Request{User: "hi"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("gemini err = %v", err)
	}
	if err := gemini.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestGeminiCompleterJoinsTextParts(t *testing.T) {
	t.Parallel()
	g := &GeminiCompleter{model: defaultGeminiModel}
	g.generate = func(ctx context.Context, req Request) (*genai.GenerateContentResponse, error) {
		if !req.JSONMode {
			t.Errorf("JSONMode = false, want true")
		}
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
		}}}, nil
	}
	text, err := g.Complete(context.Background(), Request{User: "x", JSONMode: true})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if text != `{"a":1}` {
		t.Fatalf("text = %q", text)
	}
}

func TestGeminiCompleterClassifiesErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		err       error
		rateLimit bool
	}{
		{name: "http 429", err: &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"}, rateLimit: true},
		{name: "grpc exhausted", err: errors.New("rpc error: code = ResourceExhausted desc = quota"), rateLimit: true},
		{name: "other", err: errors.New("permission denied"), rateLimit: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := &GeminiCompleter{generate: func(context.Context, Request) (*genai.GenerateContentResponse, error) {
				return nil, tc.err
			}}
			_, err := g.Complete(context.Background(), Request{User: "x"})
			if got := generation.IsRateLimit(err); got != tc.rateLimit {
				t.Fatalf("IsRateLimit = %v, want %v (err %v)", got, tc.rateLimit, err)
			}
		})
	}
}

func TestGeminiCompleterEmptyCandidates(t *testing.T) {
	t.Parallel()
	g := &GeminiCompleter{generate: func(context.Context, Request) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{}, nil
	}}
	if _, err := g.Complete(context.Background(), Request{User: "x"}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}
