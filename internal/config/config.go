package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Pipeline PipelineConfig
	Delivery DeliveryConfig
	Cache    CacheConfig
	Ai       AIConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	DeliveryLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type PipelineConfig struct {
	StreamName      string
	PlanSubject     string
	GenerateSubject string
	PlanWorkers     int
	GenerateWorkers int
	LocalTopic      string // in-process rendered-chunk topic (watermill)
}

type DeliveryConfig struct {
	MaxRetries    int
	RetryBase     time.Duration
	AckTimeout    time.Duration
	SweepInterval time.Duration
	StuckAfter    time.Duration
	ParkTTL       time.Duration
}

type CacheConfig struct {
	PlanTTL  time.Duration
	ChunkTTL time.Duration
}

type AIConfig struct {
	LLMProvider      string // "ollama"
	LLMModel         string // e.g. "llama3", "qwen2.5"
	OllamaBaseURL    string
	BreakerThreshold int
	BreakerReset     time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			DeliveryLogPath:    getEnv("DELIVERY_LOG_PATH", "logs/delivery.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Pipeline: PipelineConfig{
			StreamName:      getEnv("PIPELINE_STREAM_NAME", "LECTURE"),
			PlanSubject:     getEnv("PIPELINE_PLAN_SUBJECT", "lecture.plan"),
			GenerateSubject: getEnv("PIPELINE_GENERATE_SUBJECT", "lecture.generate"),
			PlanWorkers:     getEnvAsInt("PIPELINE_PLAN_WORKERS", 2),
			GenerateWorkers: getEnvAsInt("PIPELINE_GENERATE_WORKERS", 4),
			LocalTopic:      getEnv("PIPELINE_LOCAL_TOPIC", "LECTURE_RENDERED"),
		},
		Delivery: DeliveryConfig{
			MaxRetries:    getEnvAsInt("DELIVERY_MAX_RETRIES", 3),
			RetryBase:     getEnvAsDuration("DELIVERY_RETRY_BASE", 200*time.Millisecond),
			AckTimeout:    getEnvAsDuration("DELIVERY_ACK_TIMEOUT", 200*time.Millisecond),
			SweepInterval: getEnvAsDuration("DELIVERY_SWEEP_INTERVAL", 5*time.Second),
			StuckAfter:    getEnvAsDuration("DELIVERY_STUCK_AFTER", 30*time.Second),
			ParkTTL:       getEnvAsDuration("DELIVERY_PARK_TTL", 6*time.Hour),
		},
		Cache: CacheConfig{
			PlanTTL:  getEnvAsDuration("CACHE_PLAN_TTL", 24*time.Hour),
			ChunkTTL: getEnvAsDuration("CACHE_CHUNK_TTL", 24*time.Hour),
		},
		Ai: AIConfig{
			LLMProvider:      getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:         getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			BreakerThreshold: getEnvAsInt("AI_BREAKER_THRESHOLD", 3),
			BreakerReset:     getEnvAsDuration("AI_BREAKER_RESET", 30*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
