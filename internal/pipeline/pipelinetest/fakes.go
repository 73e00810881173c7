// Package pipelinetest provides in-memory fakes of the external collaborators
// used by the pipeline and worker packages.
package pipelinetest

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"campaignforge/internal/imagegen"
	"campaignforge/internal/providers/generation"
	"campaignforge/internal/providers/textgen"
	"campaignforge/internal/storage"
)

// BriefJSON is a complete strategist response.
const BriefJSON = `{"objective":"Grow weekday orders","targetAudience":"office workers","funnelStage":"conversion","keyMessage":"Lunch that keeps up with you","valueProposition":"Fresh bowls delivered in 15 minutes","emotionalHook":"That 2pm slump is optional","primaryChannel":"instagram","visualStyle":"bright flat-lay food photography","callToAction":"Order your bowl now","campaignConcept":"Fuel the afternoon"}`

// CreativeJSON is a complete creative response with five labelled scenes.
const CreativeJSON = `{"title":"Fuel the Afternoon","imagePrompt":"A vibrant grain bowl on a sunny office desk","scenes":[` +
	`{"beat":"hook","description":"Clock hits 2pm","visualDirection":"v1","cameraStyle":"c1","lighting":"l1","emotionalTone":"t1"},` +
	`{"beat":"problem","description":"Sad desk sandwich","visualDirection":"v2","cameraStyle":"c2","lighting":"l2","emotionalTone":"t2"},` +
	`{"beat":"value","description":"Bowl arrives in minutes","visualDirection":"v3","cameraStyle":"c3","lighting":"l3","emotionalTone":"t3"},` +
	`{"beat":"proof","description":"Colleagues join in","visualDirection":"v4","cameraStyle":"c4","lighting":"l4","emotionalTone":"t4"},` +
	`{"beat":"cta","description":"Order your bowl now","visualDirection":"v5","cameraStyle":"c5","lighting":"l5","emotionalTone":"t5"}]}`

// PNG is a minimal payload http.DetectContentType reports as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n0000")

// Text is a scripted textgen.Completer.
type Text struct {
	// Fn answers each request. When nil, IsCreativeRequest decides between
	// BriefJSON and CreativeJSON.
	Fn            func(req textgen.Request) (string, error)
	NoCredentials bool
	calls         atomic.Int32
}

// IsCreativeRequest reports whether req asks for a creative plan rather than
// a brief.
func IsCreativeRequest(req textgen.Request) bool {
	return strings.Contains(req.User, `"scenes":`)
}

func (t *Text) Name() string         { return "fake-text" }
func (t *Text) HasCredentials() bool { return !t.NoCredentials }

func (t *Text) Complete(ctx context.Context, req textgen.Request) (string, error) {
	t.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.Fn != nil {
		return t.Fn(req)
	}
	if IsCreativeRequest(req) {
		return CreativeJSON, nil
	}
	return BriefJSON, nil
}

// Calls returns how many completions were requested.
func (t *Text) Calls() int { return int(t.calls.Load()) }

// Images is a scripted imagegen.Model.
type Images struct {
	// Fn answers each call. When nil every call returns PNG.
	Fn            func(prompt, size string) (string, error)
	NoCredentials bool
	calls         atomic.Int32
}

func (m *Images) Name() string         { return "fake-images" }
func (m *Images) HasCredentials() bool { return !m.NoCredentials }

func (m *Images) GenerateImage(ctx context.Context, prompt, size string) (string, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Fn != nil {
		return m.Fn(prompt, size)
	}
	return base64.StdEncoding.EncodeToString(PNG), nil
}

// Calls returns how many images were requested.
func (m *Images) Calls() int { return int(m.calls.Load()) }

// Video is a scripted generation.Backend.
type Video struct {
	mu sync.Mutex
	// SubmitErrs are returned by successive Submit calls; nil entries succeed.
	SubmitErrs []error
	// PendingPolls is how many polls report pending before completion.
	// Negative values never complete.
	PendingPolls int
	// Final is returned once the pending polls are used up. Zero value means
	// done with ResultURL.
	Final         generation.PollResult
	ResultURL     string
	NoCredentials bool
	submits       int
	polls         int
	lastOpts      generation.Options
}

func (v *Video) Name() string         { return "fake-video" }
func (v *Video) HasCredentials() bool { return !v.NoCredentials }

func (v *Video) Submit(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submits++
	v.lastOpts = opts
	if len(v.SubmitErrs) > 0 {
		err := v.SubmitErrs[0]
		v.SubmitErrs = v.SubmitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "fake-request", nil
}

func (v *Video) Poll(ctx context.Context, requestID string) (generation.PollResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.polls++
	if v.PendingPolls < 0 || v.polls <= v.PendingPolls {
		return generation.PollResult{Status: generation.StatusPending}, nil
	}
	if v.Final.Status != "" {
		return v.Final, nil
	}
	url := v.ResultURL
	if url == "" {
		url = "https://video.test/result.mp4"
	}
	return generation.PollResult{Status: generation.StatusDone, ResultURL: url}, nil
}

// Submits returns how many requests were submitted.
func (v *Video) Submits() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.submits
}

// LastOptions returns the options of the most recent Submit.
func (v *Video) LastOptions() generation.Options {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastOpts
}

// Polls returns how many polls were made.
func (v *Video) Polls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.polls
}

// DownloadingVideo is a Video whose results can be downloaded.
type DownloadingVideo struct {
	*Video
	Data []byte
	Err  error
}

func (d *DownloadingVideo) Download(ctx context.Context, resultURL string) ([]byte, string, error) {
	if d.Err != nil {
		return nil, "", d.Err
	}
	return d.Data, "video/mp4", nil
}

// Assets is an in-memory storage.Store.
type Assets struct {
	mu      sync.Mutex
	objects map[string][]byte
	// Err fails every Put when set.
	Err error
}

func (a *Assets) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if a.Err != nil {
		return "", a.Err
	}
	if key == "" {
		return "", errors.New("fake assets: empty key")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = append([]byte(nil), data...)
	return "https://assets.test/" + key, nil
}

// Keys returns the stored keys.
func (a *Assets) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.objects))
	for k := range a.objects {
		keys = append(keys, k)
	}
	return keys
}

var (
	_ textgen.Completer     = (*Text)(nil)
	_ imagegen.Model        = (*Images)(nil)
	_ generation.Backend    = (*Video)(nil)
	_ generation.Downloader = (*DownloadingVideo)(nil)
	_ storage.Store         = (*Assets)(nil)
)
