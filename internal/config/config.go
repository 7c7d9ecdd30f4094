package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Snapshot store
	StoreBackend string // "file" (default) or "postgres"
	DataDir      string // snapshot directory for the file backend
	DatabaseURL  string // required when StoreBackend == "postgres"

	// Redis
	RedisURL string

	// Working directories
	WorkDir string // per-project media tree root: <WorkDir>/<id>/{images,videos,output}
	TempDir string // ffmpeg scratch space

	// OpenAI (lyric recognition + storyboard text)
	OpenAIKey string

	// Gemini / Veo (image + video generation)
	GeminiKey           string
	VeoModel            string
	StyleReferenceImage string // optional style reference passed with every image prompt

	// Classifier
	MinVideoThreshold     float64 // seconds; HIGH segments at or above get VIDEO
	MinAnimationThreshold float64 // seconds; below this a segment is STATIC
	MaxVideoDuration      float64 // seconds a single generation call can produce
	MergeThreshold        float64 // seconds; adjacent segments below this may merge
	MaxVideos             int     // budget cap on VIDEO-tier segments (0 = unlimited)
	MaxImages             int     // informational budget, surfaced in stats

	// Composition
	TransitionType     string
	TransitionDuration float64

	// Worker
	MaxConcurrentJobs int
	ImageConcurrency  int // parallel image generation calls per project
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		StoreBackend: getEnv("STORE_BACKEND", "file"),
		DataDir:      getEnv("DATA_DIR", "data/projects"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		WorkDir: getEnv("WORK_DIR", "data/media"),
		TempDir: getEnv("TEMP_DIR", "/tmp/mvstudio"),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),

		GeminiKey:           getEnv("GEMINI_API_KEY", ""),
		VeoModel:            getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		StyleReferenceImage: getEnv("STYLE_REFERENCE_IMAGE", ""),

		MinVideoThreshold:     getEnvFloat("MIN_VIDEO_THRESHOLD", 4),
		MinAnimationThreshold: getEnvFloat("MIN_ANIMATION_THRESHOLD", 2),
		MaxVideoDuration:      getEnvFloat("MAX_VIDEO_DURATION", 10),
		MergeThreshold:        getEnvFloat("MERGE_THRESHOLD", 2),
		MaxVideos:             getEnvInt("MAX_VIDEOS", 0),
		MaxImages:             getEnvInt("MAX_IMAGES", 0),

		TransitionType:     getEnv("TRANSITION_TYPE", "crossfade"),
		TransitionDuration: getEnvFloat("TRANSITION_DURATION", 0.5),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 5),
		ImageConcurrency:  getEnvInt("IMAGE_CONCURRENCY", 4),
	}

	switch cfg.StoreBackend {
	case "file":
		// no extra requirements
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want file or postgres)", cfg.StoreBackend)
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
