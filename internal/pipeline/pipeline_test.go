package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campaignforge/internal/domain"
	"campaignforge/internal/pipeline/pipelinetest"
	"campaignforge/internal/providers/generation"
	"campaignforge/internal/providers/textgen"
)

func testBrief() *domain.CampaignBrief {
	return &domain.CampaignBrief{
		Objective:        "Grow weekday orders",
		TargetAudience:   "office workers",
		KeyMessage:       "Lunch that keeps up with you",
		ValueProposition: "Fresh bowls delivered in 15 minutes",
		EmotionalHook:    "That 2pm slump is optional",
		VisualStyle:      "bright flat-lay food photography",
		CallToAction:     "Order your bowl now",
		CampaignConcept:  "Fuel the afternoon",
	}
}

func fastVideoClient(b generation.Backend) *generation.Client {
	return generation.NewClient(b, generation.ClientOptions{
		Stage:            videoStageName,
		PollInterval:     time.Millisecond,
		MaxWait:          time.Second,
		RateLimitBackoff: time.Millisecond,
	})
}

func TestStateApplyMergesOnlyPatchedFields(t *testing.T) {
	t.Parallel()
	st := State{JobID: "j", Brief: testBrief(), VideoURL: "keep"}
	next := st.Apply(Patch{AdImages: []domain.AdImage{{Type: domain.AdImageBanner, URL: "u"}}})
	if next.Brief == nil || next.VideoURL != "keep" {
		t.Fatalf("untouched fields were lost: %+v", next)
	}
	if len(next.AdImages) != 1 {
		t.Fatalf("AdImages = %v", next.AdImages)
	}
	if st.AdImages != nil {
		t.Fatalf("Apply mutated the receiver")
	}
	failed := next.Apply(Failed(errors.New("boom")))
	if len(failed.AdImages) != 1 || failed.Brief == nil {
		t.Fatalf("error patch changed state: %+v", failed)
	}
}

func TestStrategistParsesFencedBrief(t *testing.T) {
	t.Parallel()
	text := &pipelinetest.Text{Fn: func(req textgen.Request) (string, error) {
		if !req.JSONMode {
			t.Errorf("JSONMode = false")
		}
		if !strings.Contains(req.User, `"Kopi Senja"`) || !strings.Contains(req.User, "rooftop cafe") {
			t.Errorf("prompt missing input: %s", req.User)
		}
		return "Sure!\n```json\n" + pipelinetest.BriefJSON + "\n```", nil
	}}
	s := NewStages(Options{Text: text})
	p := s.Strategist(context.Background(), State{Input: domain.JobInput{BrandName: "Kopi Senja", BrandContext: "rooftop cafe"}})
	if p.Err != nil {
		t.Fatalf("Strategist error: %v", p.Err)
	}
	if p.Brief == nil || p.Brief.CallToAction != "Order your bowl now" {
		t.Fatalf("brief = %+v", p.Brief)
	}
}

func TestStrategistFailures(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		brand string
		text  *pipelinetest.Text
		want  string
		is    error
	}{
		{name: "missing brand", brand: " ", text: &pipelinetest.Text{}, want: "brand name is required", is: domain.ErrValidation},
		{name: "no credentials", brand: "b", text: &pipelinetest.Text{NoCredentials: true}, want: "text model", is: domain.ErrConfiguration},
		{name: "model error", brand: "b", text: &pipelinetest.Text{Fn: func(textgen.Request) (string, error) { return "", errors.New("upstream 500") }}, want: "upstream 500"},
		{name: "not json", brand: "b", text: &pipelinetest.Text{Fn: func(textgen.Request) (string, error) { return "I cannot help", nil }}, want: "parse brief"},
		{name: "missing cta", brand: "b", text: &pipelinetest.Text{Fn: func(textgen.Request) (string, error) { return `{"keyMessage":"x"}`, nil }}, want: "callToAction"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := NewStages(Options{Text: tc.text}).Strategist(context.Background(), State{Input: domain.JobInput{BrandName: tc.brand}})
			if p.Err == nil || p.Brief != nil {
				t.Fatalf("patch = %+v, want failure", p)
			}
			if !strings.HasPrefix(p.Err.Error(), "strategist: ") || !strings.Contains(p.Err.Error(), tc.want) {
				t.Fatalf("err = %q, want %q", p.Err, tc.want)
			}
			if tc.is != nil && !errors.Is(p.Err, tc.is) {
				t.Fatalf("err = %v, want %v", p.Err, tc.is)
			}
		})
	}
}

func TestCreativeUsesModelScenesInBeatOrder(t *testing.T) {
	t.Parallel()
	reordered := `{"title":"T","imagePrompt":"P","scenes":[` +
		`{"beat":"cta","description":"e"},{"beat":"proof","description":"d"},{"beat":"value","description":"c"},` +
		`{"beat":"problem","description":"b"},{"beat":"hook","description":"a"}]}`
	text := &pipelinetest.Text{Fn: func(textgen.Request) (string, error) { return reordered, nil }}
	p := NewStages(Options{Text: text}).CreativePromptBuilder(context.Background(), State{Brief: testBrief()})
	if p.Err != nil || p.Creative == nil {
		t.Fatalf("patch = %+v", p)
	}
	var got []string
	for i, sc := range p.Creative.Scenes {
		if sc.Beat != domain.SceneBeats[i] {
			t.Fatalf("scene %d beat = %s, want %s", i, sc.Beat, domain.SceneBeats[i])
		}
		got = append(got, sc.Description)
	}
	if strings.Join(got, "") != "abcde" {
		t.Fatalf("descriptions = %v", got)
	}
	if p.Creative.Title != "T" || p.Creative.ImagePrompt != "P" {
		t.Fatalf("creative = %+v", p.Creative)
	}
}

func TestCreativeFallsBack(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		fn   func(textgen.Request) (string, error)
	}{
		{name: "model error", fn: func(textgen.Request) (string, error) { return "", errors.New("down") }},
		{name: "unparseable", fn: func(textgen.Request) (string, error) { return "scenes: none", nil }},
		{name: "too few scenes", fn: func(textgen.Request) (string, error) {
			return `{"title":"T","imagePrompt":"P","scenes":[{"beat":"hook","description":"a"},{"beat":"cta","description":"b"}]}`, nil
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			brief := testBrief()
			p := NewStages(Options{Text: &pipelinetest.Text{Fn: tc.fn}}).CreativePromptBuilder(context.Background(), State{
				Input: domain.JobInput{BrandName: "kopi senja"},
				Brief: brief,
			})
			if p.Err != nil {
				t.Fatalf("fallback must not fail: %v", p.Err)
			}
			want := FallbackCreative("kopi senja", *brief)
			if p.Creative == nil || p.Creative.Title != want.Title || len(p.Creative.Scenes) != 5 {
				t.Fatalf("creative = %+v, want fallback", p.Creative)
			}
		})
	}
}

func TestCreativeRequiresBrief(t *testing.T) {
	t.Parallel()
	p := NewStages(Options{Text: &pipelinetest.Text{}}).CreativePromptBuilder(context.Background(), State{})
	if p.Err == nil || p.Creative != nil {
		t.Fatalf("patch = %+v, want failure", p)
	}
}

func TestFallbackCreativeMapsBriefFields(t *testing.T) {
	t.Parallel()
	brief := *testBrief()
	c := FallbackCreative("kopi  senja", brief)
	want := map[domain.SceneBeat]string{
		domain.BeatHook:    brief.EmotionalHook,
		domain.BeatProblem: brief.KeyMessage,
		domain.BeatValue:   brief.ValueProposition,
		domain.BeatProof:   brief.CampaignConcept,
		domain.BeatCTA:     brief.CallToAction,
	}
	if len(c.Scenes) != len(domain.SceneBeats) {
		t.Fatalf("scenes = %d, want 5", len(c.Scenes))
	}
	for i, sc := range c.Scenes {
		if sc.Beat != domain.SceneBeats[i] {
			t.Fatalf("scene %d beat = %s", i, sc.Beat)
		}
		if sc.Description != want[sc.Beat] {
			t.Fatalf("%s description = %q, want %q", sc.Beat, sc.Description, want[sc.Beat])
		}
		if sc.CameraStyle == "" || sc.Lighting == "" || sc.EmotionalTone == "" {
			t.Fatalf("%s scene incomplete: %+v", sc.Beat, sc)
		}
	}
	if c.Title != "Kopi Senja: Fuel the afternoon" {
		t.Fatalf("title = %q", c.Title)
	}
	if !strings.Contains(c.ImagePrompt, "Kopi Senja") {
		t.Fatalf("image prompt = %q", c.ImagePrompt)
	}
}

func TestImageGenerationStoresAllVariants(t *testing.T) {
	t.Parallel()
	var sizes sync.Map
	images := &pipelinetest.Images{Fn: func(prompt, size string) (string, error) {
		sizes.Store(size, true)
		return base64.StdEncoding.EncodeToString(pipelinetest.PNG), nil
	}}
	assets := &pipelinetest.Assets{}
	s := NewStages(Options{Images: images, Assets: assets})
	fallback := FallbackCreative("b", *testBrief())
	p := s.ImageGeneration(context.Background(), State{JobID: "job-1", Brief: testBrief(), Creative: &fallback})
	if p.Err != nil {
		t.Fatalf("ImageGeneration error: %v", p.Err)
	}
	wantTypes := []domain.AdImageType{domain.AdImageSocialPost, domain.AdImageBanner, domain.AdImageProductFocus}
	if len(p.AdImages) != len(wantTypes) {
		t.Fatalf("images = %+v", p.AdImages)
	}
	for i, img := range p.AdImages {
		if img.Type != wantTypes[i] {
			t.Fatalf("image %d type = %s, want %s", i, img.Type, wantTypes[i])
		}
		wantURL := "https://assets.test/generated/job-1/image/" + string(img.Type) + ".png"
		if img.URL != wantURL {
			t.Fatalf("url = %q, want %q", img.URL, wantURL)
		}
	}
	for _, size := range []string{"1024x1024", "1536x1024", "1024x1536"} {
		if _, ok := sizes.Load(size); !ok {
			t.Fatalf("size %s never requested", size)
		}
	}
	if images.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", images.Calls())
	}
}

func TestImageGenerationIsAllOrNothing(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	images := &pipelinetest.Images{Fn: func(prompt, size string) (string, error) {
		if n.Add(1) == 2 {
			return "", errors.New("content policy violation")
		}
		return base64.StdEncoding.EncodeToString(pipelinetest.PNG), nil
	}}
	fallback := FallbackCreative("b", *testBrief())
	p := NewStages(Options{Images: images, Assets: &pipelinetest.Assets{}}).
		ImageGeneration(context.Background(), State{JobID: "j", Creative: &fallback})
	if p.Err == nil {
		t.Fatalf("expected failure")
	}
	if p.AdImages != nil {
		t.Fatalf("partial images returned: %+v", p.AdImages)
	}
	if !strings.Contains(p.Err.Error(), "image generation: content policy violation") {
		t.Fatalf("err = %q", p.Err)
	}
}

func TestImageGenerationStorageFailure(t *testing.T) {
	t.Parallel()
	fallback := FallbackCreative("b", *testBrief())
	p := NewStages(Options{Images: &pipelinetest.Images{}, Assets: &pipelinetest.Assets{Err: errors.New("disk full")}}).
		ImageGeneration(context.Background(), State{JobID: "j", Creative: &fallback})
	if p.Err == nil || !strings.Contains(p.Err.Error(), "disk full") {
		t.Fatalf("err = %v", p.Err)
	}
}

func TestImageGenerationRetriesRateLimitOnce(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	images := &pipelinetest.Images{Fn: func(prompt, size string) (string, error) {
		if size == "1536x1024" && n.Add(1) == 1 {
			return "", &generation.RateLimitError{Message: "429"}
		}
		return base64.StdEncoding.EncodeToString(pipelinetest.PNG), nil
	}}
	fallback := FallbackCreative("b", *testBrief())
	p := NewStages(Options{Images: images, Assets: &pipelinetest.Assets{}, RateLimitBackoff: time.Millisecond}).
		ImageGeneration(context.Background(), State{JobID: "j", Creative: &fallback})
	if p.Err != nil {
		t.Fatalf("ImageGeneration error: %v", p.Err)
	}
	if images.Calls() != 4 {
		t.Fatalf("calls = %d, want 4", images.Calls())
	}
}

func TestVideoGenerationReturnsProviderURL(t *testing.T) {
	t.Parallel()
	backend := &pipelinetest.Video{PendingPolls: 2, ResultURL: "https://video.test/v.mp4"}
	fallback := FallbackCreative("b", *testBrief())
	p := NewStages(Options{Video: fastVideoClient(backend), Assets: &pipelinetest.Assets{}}).
		VideoGeneration(context.Background(), State{JobID: "j", Creative: &fallback})
	if p.Err != nil {
		t.Fatalf("VideoGeneration error: %v", p.Err)
	}
	if p.VideoURL == nil || *p.VideoURL != "https://video.test/v.mp4" {
		t.Fatalf("VideoURL = %v", p.VideoURL)
	}
	if backend.Submits() != 1 {
		t.Fatalf("submits = %d", backend.Submits())
	}
}

func TestVideoGenerationPassesVideoHints(t *testing.T) {
	t.Parallel()
	backend := &pipelinetest.Video{}
	fallback := FallbackCreative("b", *testBrief())
	p := NewStages(Options{
		Video:                fastVideoClient(backend),
		VideoDurationSeconds: 6,
		VideoNegativePrompt:  " watermark ",
	}).VideoGeneration(context.Background(), State{JobID: "j", Creative: &fallback})
	if p.Err != nil {
		t.Fatalf("VideoGeneration error: %v", p.Err)
	}
	opts := backend.LastOptions()
	if opts.DurationSeconds != 6 || opts.NegativePrompt != "watermark" || opts.AspectRatio != "16:9" || opts.RequestID != "j" {
		t.Fatalf("options = %+v", opts)
	}
}

func TestVideoGenerationMirrorsDownloads(t *testing.T) {
	t.Parallel()
	backend := &pipelinetest.DownloadingVideo{Video: &pipelinetest.Video{}, Data: []byte("mp4")}
	assets := &pipelinetest.Assets{}
	fallback := FallbackCreative("b", *testBrief())
	p := NewStages(Options{Video: fastVideoClient(backend), Assets: assets}).
		VideoGeneration(context.Background(), State{JobID: "job-9", Creative: &fallback})
	if p.Err != nil {
		t.Fatalf("VideoGeneration error: %v", p.Err)
	}
	if *p.VideoURL != "https://assets.test/generated/job-9/video/ad.mp4" {
		t.Fatalf("VideoURL = %q", *p.VideoURL)
	}
}

func TestVideoGenerationFailures(t *testing.T) {
	t.Parallel()
	fallback := FallbackCreative("b", *testBrief())
	st := State{JobID: "j", Creative: &fallback}

	p := NewStages(Options{Video: fastVideoClient(&pipelinetest.Video{NoCredentials: true})}).VideoGeneration(context.Background(), st)
	if !errors.Is(p.Err, domain.ErrConfiguration) {
		t.Fatalf("missing credentials err = %v, want configuration error", p.Err)
	}

	failing := &pipelinetest.Video{Final: generation.PollResult{Status: generation.StatusFailed, Message: "unsafe prompt"}}
	p = NewStages(Options{Video: fastVideoClient(failing)}).VideoGeneration(context.Background(), st)
	if !errors.Is(p.Err, generation.ErrProviderFailed) || p.VideoURL != nil {
		t.Fatalf("provider failure patch = %+v", p)
	}

	p = NewStages(Options{Video: fastVideoClient(&pipelinetest.Video{})}).VideoGeneration(context.Background(), State{JobID: "j"})
	if p.Err == nil {
		t.Fatalf("expected failure without scene plan")
	}
}

func TestVideoPromptCombinesScenes(t *testing.T) {
	t.Parallel()
	c := FallbackCreative("b", *testBrief())
	prompt := buildVideoPrompt(c, testBrief())
	for i, sc := range c.Scenes {
		marker := "Scene " + strconv.Itoa(i+1) + " (" + string(sc.Beat) + ")"
		if !strings.Contains(prompt, marker) {
			t.Fatalf("prompt missing %q:\n%s", marker, prompt)
		}
	}
	if !strings.HasPrefix(prompt, c.Title) {
		t.Fatalf("prompt does not start with title: %s", prompt)
	}
	if !strings.Contains(prompt, "widescreen 16:9") || strings.Contains(prompt, "vertical") {
		t.Fatalf("prompt framing does not match the aspect ratio: %s", prompt)
	}
}
