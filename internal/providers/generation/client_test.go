package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubBackend struct {
	mu          sync.Mutex
	creds       bool
	submitErrs  []error
	polls       []PollResult
	pollErr     error
	submitCalls int
	pollCalls   int
}

func (s *stubBackend) Name() string         { return "stub" }
func (s *stubBackend) HasCredentials() bool { return s.creds }

func (s *stubBackend) Submit(ctx context.Context, prompt string, opts Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitCalls++
	if len(s.submitErrs) > 0 {
		err := s.submitErrs[0]
		s.submitErrs = s.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "req-1", nil
}

func (s *stubBackend) Poll(ctx context.Context, requestID string) (PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollCalls++
	if s.pollErr != nil {
		return PollResult{}, s.pollErr
	}
	if len(s.polls) == 0 {
		return PollResult{Status: StatusPending}, nil
	}
	res := s.polls[0]
	s.polls = s.polls[1:]
	return res, nil
}

func fastClient(b Backend, maxWait time.Duration) *Client {
	return NewClient(b, ClientOptions{
		Stage:            "video generation",
		PollInterval:     2 * time.Millisecond,
		MaxWait:          maxWait,
		RateLimitBackoff: time.Millisecond,
	})
}

func TestGenerateReturnsResultURL(t *testing.T) {
	backend := &stubBackend{creds: true, polls: []PollResult{
		{Status: StatusPending},
		{Status: StatusPending},
		{Status: StatusDone, ResultURL: "https://cdn.example.com/v.mp4"},
	}}
	res := fastClient(backend, time.Second).Generate(context.Background(), "prompt", Options{})
	if !res.OK() {
		t.Fatalf("Generate error: %v", res.Err)
	}
	if res.Value != "https://cdn.example.com/v.mp4" {
		t.Fatalf("Value = %q", res.Value)
	}
	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
	if backend.pollCalls != 3 {
		t.Fatalf("poll calls = %d, want 3", backend.pollCalls)
	}
}

func TestGenerateRetriesRateLimitOnce(t *testing.T) {
	backend := &stubBackend{
		creds:      true,
		submitErrs: []error{&RateLimitError{Provider: "stub", Message: "quota exceeded for model"}},
		polls:      []PollResult{{Status: StatusDone, ResultURL: "https://cdn.example.com/v.mp4"}},
	}
	res := fastClient(backend, time.Second).Generate(context.Background(), "prompt", Options{})
	if !res.OK() {
		t.Fatalf("Generate error: %v", res.Err)
	}
	if backend.submitCalls != 2 {
		t.Fatalf("submit calls = %d, want 2", backend.submitCalls)
	}
}

func TestGenerateNormalizesRepeatedRateLimit(t *testing.T) {
	raw := &RateLimitError{Provider: "stub", Message: "quota exceeded for model"}
	backend := &stubBackend{creds: true, submitErrs: []error{raw, raw, raw}}
	res := fastClient(backend, time.Second).Generate(context.Background(), "prompt", Options{})
	if res.OK() {
		t.Fatalf("expected error")
	}
	if !res.IsRateLimit {
		t.Fatalf("IsRateLimit = false, want true")
	}
	if !errors.Is(res.Err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", res.Err)
	}
	if strings.Contains(res.Err.Error(), "quota exceeded") {
		t.Fatalf("raw provider message leaked: %v", res.Err)
	}
	if !strings.HasPrefix(res.Err.Error(), "video generation: ") {
		t.Fatalf("missing stage prefix: %v", res.Err)
	}
	if backend.submitCalls != 2 {
		t.Fatalf("submit calls = %d, want 2", backend.submitCalls)
	}
}

func TestGeneratePassesOtherErrorsThrough(t *testing.T) {
	backend := &stubBackend{creds: true, submitErrs: []error{errors.New("invalid api key")}}
	res := fastClient(backend, time.Second).Generate(context.Background(), "prompt", Options{})
	if res.OK() || res.IsRateLimit {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Err.Error() != "video generation: invalid api key" {
		t.Fatalf("err = %q", res.Err.Error())
	}
	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	tests := []struct {
		name string
		poll PollResult
		want string
	}{
		{name: "failed", poll: PollResult{Status: StatusFailed, Message: "content policy"}, want: "content policy"},
		{name: "expired", poll: PollResult{Status: StatusExpired}, want: "request expired"},
		{name: "done without url", poll: PollResult{Status: StatusDone}, want: "without a result url"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			backend := &stubBackend{creds: true, polls: []PollResult{tc.poll}}
			res := fastClient(backend, time.Second).Generate(context.Background(), "prompt", Options{})
			if !errors.Is(res.Err, ErrProviderFailed) {
				t.Fatalf("err = %v, want ErrProviderFailed", res.Err)
			}
			if errors.Is(res.Err, ErrTimeout) {
				t.Fatalf("provider failure must not look like a timeout")
			}
			if !strings.Contains(res.Err.Error(), tc.want) {
				t.Fatalf("err = %q, want substring %q", res.Err, tc.want)
			}
		})
	}
}

func TestGenerateTimesOutWithinMargin(t *testing.T) {
	backend := &stubBackend{creds: true}
	maxWait := 40 * time.Millisecond
	start := time.Now()
	res := fastClient(backend, maxWait).Generate(context.Background(), "prompt", Options{})
	elapsed := time.Since(start)
	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", res.Err)
	}
	if errors.Is(res.Err, ErrProviderFailed) {
		t.Fatalf("timeout must not look like a provider failure")
	}
	if !strings.Contains(res.Err.Error(), maxWait.String()) {
		t.Fatalf("err = %q, want duration %s", res.Err, maxWait)
	}
	if elapsed < maxWait || elapsed > maxWait+time.Second {
		t.Fatalf("elapsed = %s, want about %s", elapsed, maxWait)
	}
}

func TestGenerateStopsOnContextCancel(t *testing.T) {
	backend := &stubBackend{creds: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := fastClient(backend, time.Minute).Generate(ctx, "prompt", Options{})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", res.Err)
	}
}

func TestGenerateSkipsRateLimitedPolls(t *testing.T) {
	backend := &stubBackend{creds: true, pollErr: &RateLimitError{Message: "slow down"}}
	res := fastClient(backend, 30*time.Millisecond).Generate(context.Background(), "prompt", Options{})
	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", res.Err)
	}
	if backend.pollCalls < 2 {
		t.Fatalf("poll calls = %d, want repeated polling", backend.pollCalls)
	}
}

func TestGenerateWithoutCredentials(t *testing.T) {
	backend := &stubBackend{}
	res := fastClient(backend, time.Second).Generate(context.Background(), "prompt", Options{})
	if !errors.Is(res.Err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", res.Err)
	}
	if backend.submitCalls != 0 {
		t.Fatalf("submit calls = %d, want 0", backend.submitCalls)
	}
}

func TestRetryHonoursContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	res := Retry(ctx, RetryOptions{Stage: "image generation", Backoff: time.Hour}, func(context.Context) (string, error) {
		calls++
		return "", &RateLimitError{Message: "429"}
	})
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", res.Err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
