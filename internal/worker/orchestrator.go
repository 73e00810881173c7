// Package worker drives queued campaign jobs through the stage graph and
// records their lifecycle in the job store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campaignforge/internal/domain"
	"campaignforge/internal/infra"
	"campaignforge/internal/pipeline"
	"campaignforge/internal/providers/generation"
)

const (
	defaultImageTimeout = 4 * time.Minute
	defaultVideoTimeout = 10 * time.Minute

	stepStarting  = "Starting"
	stepCompleted = "Completed"
	stepFailed    = "Failed"
)

// CredentialEnv names the environment variables reported when a capability
// is missing.
type CredentialEnv struct {
	Text  string
	Image string
	Video string
}

// Options configures an Orchestrator.
type Options struct {
	Jobs   domain.JobStore
	Brains domain.BrainStore
	Stages *pipeline.Stages
	// Graph defaults to the campaign graph built from Stages.
	Graph        *pipeline.Graph
	ImageTimeout time.Duration
	VideoTimeout time.Duration
	Credentials  CredentialEnv
	Logger       *infra.Logger
}

// Orchestrator runs one job at a time from queued to a terminal state.
type Orchestrator struct {
	jobs         domain.JobStore
	brains       domain.BrainStore
	stages       *pipeline.Stages
	graph        *pipeline.Graph
	imageTimeout time.Duration
	videoTimeout time.Duration
	env          CredentialEnv
	logger       *infra.Logger
}

// NewOrchestrator validates opts and returns an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Jobs == nil {
		return nil, errors.New("worker: job store is required")
	}
	if opts.Brains == nil {
		return nil, errors.New("worker: brain store is required")
	}
	if opts.Stages == nil {
		return nil, errors.New("worker: stages are required")
	}
	graph := opts.Graph
	if graph == nil {
		g, err := pipeline.NewCampaignGraph(opts.Stages)
		if err != nil {
			return nil, fmt.Errorf("worker: build graph: %w", err)
		}
		graph = g
	}
	imageTimeout := opts.ImageTimeout
	if imageTimeout <= 0 {
		imageTimeout = defaultImageTimeout
	}
	videoTimeout := opts.VideoTimeout
	if videoTimeout <= 0 {
		videoTimeout = defaultVideoTimeout
	}
	env := opts.Credentials
	if env.Text == "" {
		env.Text = "TEXT_API_KEY"
	}
	if env.Image == "" {
		env.Image = "IMAGE_API_KEY"
	}
	if env.Video == "" {
		env.Video = "VIDEO_API_KEY"
	}
	return &Orchestrator{
		jobs:         opts.Jobs,
		brains:       opts.Brains,
		stages:       opts.Stages,
		graph:        graph,
		imageTimeout: imageTimeout,
		videoTimeout: videoTimeout,
		env:          env,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// run carries the per-job state through the graph.
type run struct {
	job   *domain.Job
	state pipeline.State
	brain *domain.Brain
	// branchErrs records asset branches that failed inside a fan-out.
	branchErrs map[domain.AssetKind]error
}

// Process drives jobID to a terminal state. Jobs that are missing or no longer
// queued are ignored. Failures are written to the job record and logged;
// nothing is returned to the caller.
func (o *Orchestrator) Process(ctx context.Context, jobID string) {
	logger := o.logger.With().Str("job_id", jobID).Logger()

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("worker: load job failed")
		return
	}
	if job.Status != domain.JobStatusQueued {
		logger.Debug().Str("status", string(job.Status)).Msg("worker: job not queued, skipping")
		return
	}
	logger = logger.With().Str("mode", string(job.Mode)).Logger()

	r := &run{
		job:        job,
		state:      pipeline.State{JobID: job.ID, Mode: job.Mode, Input: job.Input},
		branchErrs: map[domain.AssetKind]error{},
	}
	if err := o.checkCapabilities(job.Mode); err != nil {
		o.finish(ctx, r, err)
		return
	}

	won, err := o.jobs.MarkRunning(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("worker: mark running failed")
		return
	}
	if !won {
		logger.Debug().Msg("worker: job claimed elsewhere")
		return
	}
	logger.Info().Msg("worker: job started")

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("worker: job panicked")
			o.finish(ctx, r, fmt.Errorf("worker: unexpected panic: %v", rec))
		}
	}()

	o.finish(ctx, r, o.execute(ctx, r))
}

func (o *Orchestrator) checkCapabilities(mode domain.Mode) error {
	if mode != domain.ModeVideoFast && !o.stages.TextReady() {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, o.env.Text)
	}
	if mode.WantsImages() && !o.stages.ImagesReady() {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, o.env.Image)
	}
	if mode.WantsVideo() && !o.stages.VideoReady() {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, o.env.Video)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	o.progress(ctx, r.job.ID, domain.Progress{Step: stepStarting})

	if r.job.Mode == domain.ModeVideoFast {
		brain, err := o.resolveBrain(ctx, r.job.Input.BrainID)
		if err != nil {
			return err
		}
		r.brain = brain
		brief, creative := brain.Brief, brain.Creative
		r.state.Brief = &brief
		r.state.Creative = &creative
		if strings.TrimSpace(r.state.Input.BrandName) == "" {
			r.state.Input.BrandName = brain.BrandName
		}
	}

	levels, err := o.graph.Plan(pipeline.StartNode(r.job.Mode), r.state)
	if err != nil {
		return fmt.Errorf("worker: plan: %w", err)
	}
	for i, level := range levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.progress(ctx, r.job.ID, domain.Progress{
			OverallPercent: levelPercent(i, len(levels)),
			Step:           stepLabel(level),
		})
		if len(level) == 1 {
			err = o.runSingle(ctx, r, level[0])
		} else {
			err = o.runFanOut(ctx, r, level)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) resolveBrain(ctx context.Context, brainID string) (*domain.Brain, error) {
	brainID = strings.TrimSpace(brainID)
	if brainID == "" {
		return nil, fmt.Errorf("%w: brainId is required", domain.ErrValidation)
	}
	brain, err := o.brains.Get(ctx, brainID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBrainNotFound, brainID)
	}
	if err != nil {
		return nil, fmt.Errorf("worker: load brain: %w", err)
	}
	return brain, nil
}

func (o *Orchestrator) runSingle(ctx context.Context, r *run, name string) error {
	node, ok := o.graph.Node(name)
	if !ok {
		return fmt.Errorf("worker: unknown node %s", name)
	}
	patch, err := o.runNode(ctx, r, node, o.timeoutFor(node, r.job.Mode))
	if err != nil {
		return err
	}
	r.state = r.state.Apply(patch)
	return nil
}

type branchResult struct {
	node  pipeline.Node
	patch pipeline.Patch
	err   error
}

// runFanOut runs the level concurrently and waits for every branch. Asset
// branches may fail as long as one branch succeeds; the failures are kept
// for the output.
func (o *Orchestrator) runFanOut(ctx context.Context, r *run, level []string) error {
	nodes := make([]pipeline.Node, 0, len(level))
	for _, name := range level {
		node, ok := o.graph.Node(name)
		if !ok {
			return fmt.Errorf("worker: unknown node %s", name)
		}
		nodes = append(nodes, node)
	}

	base := r.state
	results := make(chan branchResult, len(nodes))
	for _, node := range nodes {
		node := node
		go func() {
			patch, err := o.runNode(ctx, &run{job: r.job, state: base}, node, o.timeoutFor(node, r.job.Mode))
			results <- branchResult{node: node, patch: patch, err: err}
		}()
	}

	byName := make(map[string]branchResult, len(nodes))
	for range nodes {
		res := <-results
		byName[res.node.Name] = res
	}

	var failures []error
	succeeded := 0
	for _, node := range nodes {
		res := byName[node.Name]
		if res.err == nil {
			r.state = r.state.Apply(res.patch)
			succeeded++
			continue
		}
		if node.Asset == "" {
			return res.err
		}
		r.branchErrs[node.Asset] = res.err
		failures = append(failures, res.err)
	}
	if succeeded > 0 {
		return nil
	}
	if len(failures) == 1 {
		return failures[0]
	}
	msgs := make([]string, 0, len(failures)-1)
	for _, err := range failures[1:] {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("%w; %s", failures[0], strings.Join(msgs, "; "))
}

// runNode executes one stage. Asset stages are bounded by timeout and report
// sub-progress before and after.
func (o *Orchestrator) runNode(ctx context.Context, r *run, node pipeline.Node, timeout time.Duration) (patch pipeline.Patch, err error) {
	logger := o.logger.With().Str("job_id", r.job.ID).Str("node", node.Name).Logger()
	started := time.Now()

	runCtx := ctx
	if node.Asset != "" {
		o.assetProgress(ctx, r.job.ID, node.Asset, 5, assetStep(node.Asset, "started"))
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: unexpected panic: %v", node.Name, rec)
		}
		if err != nil && node.Asset != "" && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = &StageTimeoutError{Stage: stageName(node), After: timeout}
		}
		if node.Asset != "" {
			step := assetStep(node.Asset, "ready")
			if err != nil {
				step = assetStep(node.Asset, "failed")
			}
			o.assetProgress(ctx, r.job.ID, node.Asset, 100, step)
		}
		event := logger.Info()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.Dur("elapsed", time.Since(started)).Msg("worker: stage finished")
	}()

	st := r.state
	done := make(chan stageResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- stageResult{err: fmt.Errorf("%s: unexpected panic: %v", node.Name, rec)}
			}
		}()
		done <- stageResult{patch: node.Run(runCtx, st)}
	}()

	// A stage that ignores runCtx is abandoned at the deadline and its late
	// patch is dropped.
	select {
	case res := <-done:
		if res.err != nil {
			return pipeline.Patch{}, res.err
		}
		patch = res.patch
	case <-runCtx.Done():
		if node.Asset != "" && ctx.Err() == nil {
			return pipeline.Patch{}, &StageTimeoutError{Stage: stageName(node), After: timeout}
		}
		return pipeline.Patch{}, fmt.Errorf("%s: %w", stageName(node), runCtx.Err())
	}
	if patch.Err != nil {
		return pipeline.Patch{}, patch.Err
	}
	if node.Produces != nil && !node.Produces(st.Apply(patch)) {
		return pipeline.Patch{}, fmt.Errorf("%s: stage produced no output", stageName(node))
	}
	return patch, nil
}

type stageResult struct {
	patch pipeline.Patch
	err   error
}

func (o *Orchestrator) timeoutFor(node pipeline.Node, mode domain.Mode) time.Duration {
	if mode == domain.ModeBoth {
		return max(o.imageTimeout, o.videoTimeout)
	}
	if node.Asset == domain.AssetImage {
		return o.imageTimeout
	}
	return o.videoTimeout
}

// finish writes the terminal progress snapshot and then the terminal status.
func (o *Orchestrator) finish(ctx context.Context, r *run, runErr error) {
	ctx = context.WithoutCancel(ctx)
	logger := o.logger.With().Str("job_id", r.job.ID).Logger()

	output := o.buildOutput(r)
	status := domain.JobStatusCompleted
	step := stepCompleted
	if runErr != nil {
		status = domain.JobStatusFailed
		step = stepFailed
	}
	if status == domain.JobStatusCompleted && r.job.Mode != domain.ModeVideoFast {
		o.storeBrain(ctx, r, output)
	}

	o.progress(ctx, r.job.ID, domain.Progress{OverallPercent: 100, Step: step})

	update := domain.JobUpdate{Status: &status, Output: output}
	if runErr != nil {
		msg := runErr.Error()
		update.Error = &msg
	}
	if err := o.jobs.Update(ctx, r.job.ID, update); err != nil {
		logger.Error().Err(err).Str("status", string(status)).Msg("worker: write terminal state failed")
		return
	}
	if runErr != nil {
		logger.Warn().Err(runErr).Msg("worker: job failed")
		return
	}
	logger.Info().Int("images", len(output.AdImages)).Bool("video", output.VideoURL != "").Msg("worker: job completed")
}

// buildOutput returns nil when nothing worth reporting was produced.
func (o *Orchestrator) buildOutput(r *run) *domain.CampaignOutput {
	st := r.state
	if st.Brief == nil && len(st.AdImages) == 0 && st.VideoURL == "" && r.brain == nil {
		return nil
	}
	out := &domain.CampaignOutput{
		Brief:    st.Brief,
		AdImages: append([]domain.AdImage{}, st.AdImages...),
		VideoURL: st.VideoURL,
		Brain:    r.brain,
	}
	if err := r.branchErrs[domain.AssetImage]; err != nil {
		out.PosterError = err.Error()
	}
	if err := r.branchErrs[domain.AssetVideo]; err != nil {
		out.VideoError = err.Error()
	}
	return out
}

func (o *Orchestrator) storeBrain(ctx context.Context, r *run, output *domain.CampaignOutput) {
	if output == nil || r.state.Brief == nil || r.state.Creative == nil {
		return
	}
	id, err := o.brains.Store(ctx, domain.Brain{
		ID:        r.job.ID,
		BrandName: r.state.Input.BrandName,
		Brief:     *r.state.Brief,
		Creative:  *r.state.Creative,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", r.job.ID).Msg("worker: store brain failed")
		return
	}
	output.BrainID = id
}

func (o *Orchestrator) progress(ctx context.Context, jobID string, p domain.Progress) {
	if err := o.jobs.UpdateProgress(ctx, jobID, p); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: progress update failed")
	}
}

func (o *Orchestrator) assetProgress(ctx context.Context, jobID string, kind domain.AssetKind, percent int, step string) {
	if err := o.jobs.UpdateAssetProgress(ctx, jobID, kind, percent, step); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Str("asset", string(kind)).Msg("worker: asset progress update failed")
	}
}

// StageTimeoutError reports a generation stage that exceeded its budget.
type StageTimeoutError struct {
	Stage string
	After time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Stage, formatBudget(e.After))
}

func (e *StageTimeoutError) Unwrap() error { return generation.ErrTimeout }

func formatBudget(d time.Duration) string {
	if d < time.Minute || d%time.Minute != 0 {
		return d.String()
	}
	n := int(d / time.Minute)
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

func stageName(node pipeline.Node) string {
	switch node.Name {
	case pipeline.NodeImage:
		return "image generation"
	case pipeline.NodeVideo:
		return "video generation"
	default:
		return strings.ReplaceAll(node.Name, "_", " ")
	}
}

func assetStep(kind domain.AssetKind, state string) string {
	switch kind {
	case domain.AssetImage:
		return "Images " + state
	case domain.AssetVideo:
		return "Video " + state
	default:
		return string(kind) + " " + state
	}
}

var stepLabels = map[string]string{
	pipeline.NodeStrategist: "Building strategy",
	pipeline.NodeCreative:   "Writing creative direction",
	pipeline.NodeImage:      "Generating images",
	pipeline.NodeVideo:      "Generating video",
}

func stepLabel(level []string) string {
	if len(level) > 1 {
		return "Generating assets"
	}
	if label, ok := stepLabels[level[0]]; ok {
		return label
	}
	return level[0]
}

// levelPercent spreads the text stages over the first part of the bar; the
// generation levels report through asset progress instead.
func levelPercent(i, total int) int {
	if total <= 1 {
		return 0
	}
	return i * 10
}
