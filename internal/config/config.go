package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/clinicai/server/intake"
)

// Config is the explicit process configuration. Values come from the
// environment (optionally seeded from a .env file); adapters receive them as
// plain fields, never by reading os.Getenv themselves.
type Config struct {
	Port string

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueName     string

	GeminiAPIKey string
	GeminiModel  string

	AudioEncoding   string
	AudioSampleRate int

	JWTSecret string

	// UseMocks swaps the Gemini and Speech clients for offline fakes.
	UseMocks bool

	Intake intake.Config

	WorkerConcurrency int64
	MaxRetryAttempts  int
}

// Load reads configuration from the environment. A missing .env file is not
// an error; missing required values are.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "clinicai"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		QueueName:         getEnv("QUEUE_NAME", "transcription_jobs"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       os.Getenv("GEMINI_MODEL"),
		AudioEncoding:     getEnv("AUDIO_ENCODING", "LINEAR16"),
		AudioSampleRate:   getEnvInt("AUDIO_SAMPLE_RATE", 16000),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		UseMocks:          getEnvBool("USE_MOCKS", false),
		WorkerConcurrency: int64(getEnvInt("WORKER_CONCURRENCY", 2)),
		MaxRetryAttempts:  getEnvInt("MAX_RETRY_ATTEMPTS", 3),
	}

	ic := intake.DefaultConfig()
	ic.QuestionBudget = getEnvInt("INTAKE_QUESTION_BUDGET", ic.QuestionBudget)
	ic.MinimumQuestions = getEnvInt("INTAKE_MINIMUM_QUESTIONS", ic.MinimumQuestions)
	ic.Style = intake.ParseDialogueStyle(getEnv("INTAKE_DIALOGUE_STYLE", string(ic.Style)))
	ic.FallbackToTemplates = getEnvBool("INTAKE_FALLBACK_TO_TEMPLATES", ic.FallbackToTemplates)
	cfg.Intake = ic

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if !cfg.UseMocks && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY environment variable is required (or set USE_MOCKS=true)")
	}
	if cfg.Intake.MinimumQuestions > cfg.Intake.QuestionBudget {
		return Config{}, fmt.Errorf("INTAKE_MINIMUM_QUESTIONS (%d) cannot exceed INTAKE_QUESTION_BUDGET (%d)",
			cfg.Intake.MinimumQuestions, cfg.Intake.QuestionBudget)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
