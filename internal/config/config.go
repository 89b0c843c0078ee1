package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Image generation strategies
const (
	ImageStrategyPoll   = "poll"
	ImageStrategyRun    = "run"
	ImageStrategyGemini = "gemini"
	ImageStrategyNone   = "none"
)

// Story output formats
const (
	StoryFormatHTML = "html"
	StoryFormatText = "text"
)

// Photo stores
const (
	PhotoStoreLocal = "local"
	PhotoStoreS3    = "s3"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr       string
	LogLevel       string
	AllowedOrigins []string
	RequestTimeout time.Duration

	// Story text + vision (OpenAI-compatible)
	OpenAIAPIKey     string
	OpenAIBaseURL    string // if set, overrides the default OpenAI base URL (e.g. a proxy)
	TextProvider     string // openai, gemini
	TextModel        string
	VisionModel      string
	StoryTemperature float64
	StoryMaxTokens   int
	StoryWords       int

	// Gemini API
	GeminiAPIKey      string
	GeminiAPIEndpoint string
	GeminiModelText   string
	GeminiModelImage  string

	// Replicate
	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicateModelVersion string // poll strategy model version
	ReplicateRunVersion   string // run strategy model version (SDXL)

	// Illustration
	ImageStrategy     string // poll, run, gemini, none
	ImageFailureFatal bool
	PollInterval      time.Duration
	MaxPolls          int
	RunWait           time.Duration

	// Response
	StoryFormat    string // html, text
	MaxFieldLength int

	// Uploads
	MaxPhotoSize   int64
	UploadDir      string
	PhotoStore     string // local, s3
	PhotoRetention time.Duration

	// S3/Storage
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3PublicURL  string
	S3PresignTTL time.Duration

	// Kafka (optional; empty brokers disables events)
	KafkaBrokers     []string
	KafkaTopicEvents string
}

// Load loads configuration from environment variables.
// ENV_FILE (default pw.env) and .env are read first when present; real env vars win.
func Load() *Config {
	for _, file := range []string{getEnv("ENV_FILE", "pw.env"), ".env"} {
		if err := godotenv.Load(file); err == nil {
			log.Info().Str("file", file).Msg("Loaded environment file")
		}
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":"+getEnv("PORT", "3000")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 2*time.Minute),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		TextProvider:     strings.ToLower(getEnv("TEXT_PROVIDER", "openai")),
		TextModel:        getEnv("TEXT_MODEL", "gpt-4o"),
		VisionModel:      getEnv("VISION_MODEL", "gpt-4o"),
		StoryTemperature: getEnvFloat("STORY_TEMPERATURE", 0.8),
		StoryMaxTokens:   clampMin(getEnvInt("STORY_MAX_TOKENS", 1000), 1),
		StoryWords:       clampMin(getEnvInt("STORY_WORDS", 300), 50),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint: getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelText:   getEnv("GEMINI_MODEL_TEXT", "gemini-2.5-flash"),
		GeminiModelImage:  getEnv("GEMINI_MODEL_IMAGE", "gemini-3-pro-image-preview"),

		ReplicateAPIToken:     getEnv("REPLICATE_API_TOKEN", ""),
		ReplicateBaseURL:      getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModelVersion: getEnv("REPLICATE_MODEL_VERSION", "7be6b426d8be3d0aa2e5e1ab60fcdbd97cfd35713e13c7ab4da13ade9a8cde7b"),
		ReplicateRunVersion:   getEnv("REPLICATE_RUN_VERSION", "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"),

		ImageStrategy:     strings.ToLower(getEnv("IMAGE_STRATEGY", ImageStrategyPoll)),
		ImageFailureFatal: getEnvBool("IMAGE_FAILURE_FATAL", false),
		PollInterval:      getEnvDuration("POLL_INTERVAL", time.Second),
		MaxPolls:          clampMin(getEnvInt("MAX_POLLS", 120), 1),
		RunWait:           getEnvDuration("RUN_WAIT", 60*time.Second),

		StoryFormat:    strings.ToLower(getEnv("STORY_FORMAT", StoryFormatHTML)),
		MaxFieldLength: clampMin(getEnvInt("MAX_FIELD_LENGTH", 200), 1),

		MaxPhotoSize:   getEnvInt64("MAX_PHOTO_SIZE", 10*1024*1024), // 10MB
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		PhotoStore:     strings.ToLower(getEnv("PHOTO_STORE", PhotoStoreLocal)),
		PhotoRetention: getEnvDuration("PHOTO_RETENTION", time.Hour),

		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", "tendertales-assets"),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3PublicURL:  getEnv("S3_PUBLIC_URL", ""),
		S3PresignTTL: getEnvDuration("S3_PRESIGN_TTL", time.Hour),

		KafkaBrokers:     getEnvList("KAFKA_BROKERS", nil),
		KafkaTopicEvents: getEnv("KAFKA_TOPIC_EVENTS", "tendertales.stories.v1"),
	}
}

// Validate rejects unknown values of the enumerated settings.
func (c *Config) Validate() error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"IMAGE_STRATEGY", c.ImageStrategy, []string{ImageStrategyPoll, ImageStrategyRun, ImageStrategyGemini, ImageStrategyNone}},
		{"STORY_FORMAT", c.StoryFormat, []string{StoryFormatHTML, StoryFormatText}},
		{"PHOTO_STORE", c.PhotoStore, []string{PhotoStoreLocal, PhotoStoreS3}},
		{"TEXT_PROVIDER", c.TextProvider, []string{"openai", "gemini"}},
	}
	for _, check := range checks {
		if !slices.Contains(check.allowed, check.value) {
			return fmt.Errorf("unknown %s %q (allowed: %s)", check.key, check.value, strings.Join(check.allowed, ", "))
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// clampMin returns v if v >= min, otherwise min. Used to ensure config values are in valid range.
func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
