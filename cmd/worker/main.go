package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"campaignforge/internal/adapter/repo"
	"campaignforge/internal/imagegen"
	"campaignforge/internal/infra"
	"campaignforge/internal/infra/credentials"
	"campaignforge/internal/pipeline"
	"campaignforge/internal/providers/generation"
	"campaignforge/internal/providers/textgen"
	"campaignforge/internal/providers/video"
	"campaignforge/internal/storage"
	"campaignforge/internal/worker"
)

type providerKeys struct {
	openAI    string
	gemini    string
	dashScope string
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	gormDB, err := infra.NewGormDB(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: gorm connection failed")
	}
	brains := repo.NewBrainRepository(gormDB, cfg.BrainTTL)
	jobs := repo.NewJobRepository(runner)

	keys := resolveKeys(ctx, cfg, credentials.NewStore(runner), logger)
	httpClient := &http.Client{Timeout: 90 * time.Second}

	text, err := newTextModel(ctx, cfg, keys, httpClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure text model")
	}
	if closer, ok := text.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	assets, err := newAssetStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	images := imagegen.NewOpenAIModel(imagegen.OpenAIOptions{
		APIKey:       keys.openAI,
		Model:        cfg.OpenAIImageModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		HTTPClient:   httpClient,
		Logger:       &logger,
	})

	videoClient := generation.NewClient(newVideoBackend(cfg, keys, httpClient, &logger), generation.ClientOptions{
		Stage:            "video generation",
		PollInterval:     cfg.VideoPollInterval,
		MaxWait:          cfg.VideoStageTimeout,
		RateLimitBackoff: cfg.RateLimitBackoff,
		Logger:           &logger,
	})

	stages := pipeline.NewStages(pipeline.Options{
		Text:                 text,
		Images:               images,
		Video:                videoClient,
		Assets:               assets,
		RateLimitBackoff:     cfg.RateLimitBackoff,
		VideoDurationSeconds: cfg.VideoDuration,
		VideoNegativePrompt:  cfg.VideoNegative,
		Logger:               &logger,
	})

	orchestrator, err := worker.NewOrchestrator(worker.Options{
		Jobs:         jobs,
		Brains:       brains,
		Stages:       stages,
		ImageTimeout: cfg.ImageStageTimeout,
		VideoTimeout: cfg.VideoStageTimeout,
		Credentials: worker.CredentialEnv{
			Text:  cfg.TextAPIKeyEnv(),
			Image: "OPENAI_API_KEY",
			Video: cfg.VideoAPIKeyEnv(),
		},
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build orchestrator")
	}

	loop, err := worker.NewRunner(worker.RunnerOptions{
		Jobs:         jobs,
		Processor:    orchestrator,
		Purger:       brains,
		PollInterval: cfg.WorkerPollInterval,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build runner")
	}

	logger.Info().
		Str("text_provider", text.Name()).
		Bool("text_ready", stages.TextReady()).
		Bool("images_ready", stages.ImagesReady()).
		Str("video_provider", videoClient.Backend().Name()).
		Bool("video_ready", stages.VideoReady()).
		Msg("worker: providers configured")

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// resolveKeys prefers the environment and falls back to keys stored with
// cmd/providerkey.
func resolveKeys(ctx context.Context, cfg *infra.Config, store *credentials.Store, logger infra.Logger) providerKeys {
	resolve := func(provider, env string) string {
		key, err := store.Resolve(ctx, provider, env)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("worker: failed to load api key from store")
			return env
		}
		return key
	}
	return providerKeys{
		openAI:    resolve(credentials.ProviderOpenAI, cfg.OpenAIAPIKey),
		gemini:    resolve(credentials.ProviderGemini, cfg.GeminiAPIKey),
		dashScope: resolve(credentials.ProviderDashScope, cfg.DashScopeAPIKey),
	}
}

func newTextModel(ctx context.Context, cfg *infra.Config, keys providerKeys, httpClient *http.Client) (textgen.Completer, error) {
	switch cfg.TextProvider {
	case "gemini":
		return textgen.NewGeminiCompleter(ctx, textgen.GeminiOptions{APIKey: keys.gemini, Model: cfg.GeminiModel})
	case "openai":
		return textgen.NewOpenAICompleter(textgen.OpenAIOptions{
			APIKey:       keys.openAI,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   httpClient,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported text provider %q", cfg.TextProvider)
	}
}

func newVideoBackend(cfg *infra.Config, keys providerKeys, httpClient *http.Client, logger *infra.Logger) generation.Backend {
	if cfg.VideoProvider == "dashscope" {
		return video.NewDashScopeBackend(video.DashScopeOptions{
			APIKey:     keys.dashScope,
			BaseURL:    cfg.DashScopeBaseURL,
			Model:      cfg.DashScopeVideoModel,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	return video.NewVeoBackend(video.VeoOptions{
		APIKey:     keys.gemini,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.VeoModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})
}

func newAssetStore(cfg *infra.Config) (storage.Store, error) {
	if cfg.StorageDriver == "supabase" {
		return storage.NewSupabaseStore(storage.SupabaseOptions{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.SupabaseBucket,
		})
	}
	path := cfg.StoragePath
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return storage.NewFileStore(path, cfg.StorageBaseURL)
}
