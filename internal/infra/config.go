package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment
// variables. It is built once at startup and passed into each component.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	BatchAPIKey      string
	BatchBaseURL     string
	Model            string
	ImageSize        string
	Quality          string
	Background       string
	OutputFormat     string
	CompletionWindow string

	TargetWidth  int
	TargetHeight int

	PollInterval   time.Duration
	SyncBudget     time.Duration
	PollBudget     time.Duration
	DownloadBudget time.Duration

	StorageDriver  string
	StoragePath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Missing credentials fail here, before any network
// call is attempted.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		BatchAPIKey:      os.Getenv("STICKER_API_KEY"),
		BatchBaseURL:     getEnv("STICKER_API_BASE_URL", "https://api.openai.com/v1"),
		Model:            getEnv("STICKER_MODEL", "gpt-image-1"),
		ImageSize:        getEnv("STICKER_IMAGE_SIZE", "1024x1024"),
		Quality:          getEnv("STICKER_QUALITY", "high"),
		Background:       getEnv("STICKER_BACKGROUND", "transparent"),
		OutputFormat:     getEnv("STICKER_OUTPUT_FORMAT", "png"),
		CompletionWindow: getEnv("STICKER_COMPLETION_WINDOW", "24h"),
		TargetWidth:      getEnvInt("STICKER_TARGET_WIDTH", 512),
		TargetHeight:     getEnvInt("STICKER_TARGET_HEIGHT", 512),
		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 2)),
		SyncBudget:       time.Second * time.Duration(getEnvInt("SYNC_BUDGET_SECONDS", 25)),
		PollBudget:       time.Second * time.Duration(getEnvInt("POLL_BUDGET_SECONDS", 20)),
		DownloadBudget:   time.Second * time.Duration(getEnvInt("DOWNLOAD_BUDGET_SECONDS", 90)),
		StorageDriver:    getEnv("STORAGE_DRIVER", "filesystem"),
		StoragePath:      getEnv("STORAGE_PATH", "./data/stickers"),
		MinioEndpoint:    os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:      getEnv("MINIO_BUCKET", "stickers"),
		MinioUseSSL:      getEnvBool("MINIO_USE_SSL", true),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.BatchAPIKey == "" {
		return nil, fmt.Errorf("STICKER_API_KEY is required")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StorageDriver == "minio" && cfg.MinioEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
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
