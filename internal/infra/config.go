package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultVideoNegativePrompt = "blurry, distorted text, watermark, low quality"

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string

	TextProvider string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	// OpenAIImageModel backs ad image generation.
	OpenAIImageModel string
	OpenAIBaseURL    string
	OpenAIOrg        string

	VideoProvider       string
	VeoModel            string
	GeminiBaseURL       string
	DashScopeAPIKey     string
	DashScopeBaseURL    string
	DashScopeVideoModel string

	StorageDriver      string
	StoragePath        string
	StorageBaseURL     string
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	ImageStageTimeout  time.Duration
	VideoStageTimeout  time.Duration
	VideoPollInterval  time.Duration
	VideoDuration      int
	VideoNegative      string
	RateLimitBackoff   time.Duration
	BrainTTL           time.Duration
	WorkerPollInterval time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		TextProvider:     strings.ToLower(getEnv("TEXT_PROVIDER", "openai")),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),

		VideoProvider:       strings.ToLower(getEnv("VIDEO_PROVIDER", "veo")),
		VeoModel:            getEnv("VEO_MODEL", "veo-3.0-fast-generate-001"),
		DashScopeAPIKey:     strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY")),
		DashScopeBaseURL:    getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		DashScopeVideoModel: getEnv("DASHSCOPE_VIDEO_MODEL", "wan2.1-t2v-turbo"),

		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", "filesystem")),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "campaign-assets"),

		ImageStageTimeout:  getEnvDuration("IMAGE_STAGE_TIMEOUT", 4*time.Minute),
		VideoStageTimeout:  getEnvDuration("VIDEO_STAGE_TIMEOUT", 10*time.Minute),
		VideoPollInterval:  getEnvDuration("VIDEO_POLL_INTERVAL", 10*time.Second),
		VideoDuration:      getEnvInt("VIDEO_DURATION_SECONDS", 8),
		VideoNegative:      getEnv("VIDEO_NEGATIVE_PROMPT", defaultVideoNegativePrompt),
		RateLimitBackoff:   getEnvDuration("RATE_LIMIT_BACKOFF", 20*time.Second),
		BrainTTL:           getEnvDuration("BRAIN_TTL", 24*time.Hour),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.TextProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("TEXT_PROVIDER %q is not supported", cfg.TextProvider)
	}
	switch cfg.VideoProvider {
	case "veo", "dashscope":
	default:
		return nil, fmt.Errorf("VIDEO_PROVIDER %q is not supported", cfg.VideoProvider)
	}
	switch cfg.StorageDriver {
	case "filesystem":
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase storage driver")
		}
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER %q is not supported", cfg.StorageDriver)
	}

	return cfg, nil
}

// TextAPIKeyEnv names the env var holding credentials for the selected text provider.
func (c *Config) TextAPIKeyEnv() string {
	if c.TextProvider == "gemini" {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// VideoAPIKeyEnv names the env var holding credentials for the selected video provider.
func (c *Config) VideoAPIKeyEnv() string {
	if c.VideoProvider == "dashscope" {
		return "DASHSCOPE_API_KEY"
	}
	return "GEMINI_API_KEY"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
