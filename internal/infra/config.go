package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents worker configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	// fal queue backend (asynchronous, submit + poll).
	FalKey          string
	FalBaseURL      string
	FalTimeout      time.Duration
	FalPollInterval time.Duration

	// DashScope backend (synchronous, single call).
	DashScopeAPIKey  string
	DashScopeBaseURL string
	DashScopeModel   string
	DashScopeTimeout time.Duration

	// Text-generation backend used for prompt expansion.
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIOrg     string

	// Orchestration knobs.
	StuckAfter     time.Duration
	JobsPerOwner   int
	WorkerInterval time.Duration
	OutputDir      string
	StorageRoot    string

	// Remote object storage for artifacts, optional.
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	CDNBaseURL  string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. The stuck threshold must exceed the fal polling
// budget, otherwise the reaper could fail live work mid-poll.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		FalKey:          os.Getenv("FAL_KEY"),
		FalBaseURL:      getEnv("FAL_BASE_URL", "https://queue.fal.run"),
		FalTimeout:      time.Second * time.Duration(getEnvInt("FAL_TIMEOUT_SECONDS", 180)),
		FalPollInterval: time.Second * time.Duration(getEnvInt("FAL_POLL_INTERVAL_SECONDS", 3)),

		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		DashScopeModel:   getEnv("DASHSCOPE_MODEL", "qwen-image-plus"),
		DashScopeTimeout: time.Second * time.Duration(getEnvInt("DASHSCOPE_TIMEOUT_SECONDS", 90)),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:     os.Getenv("OPENAI_ORG"),

		StuckAfter:     time.Minute * time.Duration(getEnvInt("STUCK_AFTER_MINUTES", 15)),
		JobsPerOwner:   getEnvInt("JOBS_PER_OWNER", 3),
		WorkerInterval: time.Second * time.Duration(getEnvInt("WORKER_INTERVAL_SECONDS", 60)),
		OutputDir:      getEnv("OUTPUT_DIR", "./storage/images"),
		StorageRoot:    getEnv("STORAGE_ROOT", "./storage"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),
		CDNBaseURL:  os.Getenv("CDN_BASE_URL"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StuckAfter <= cfg.FalTimeout {
		return nil, fmt.Errorf("STUCK_AFTER_MINUTES (%s) must exceed FAL_TIMEOUT_SECONDS (%s)", cfg.StuckAfter, cfg.FalTimeout)
	}

	return cfg, nil
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
