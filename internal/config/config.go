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
	Database DatabaseConfig
	SMTP     SMTPConfig
	Ai       AIConfig
	Engine   EngineConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	EscalationLogPath  string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	OtlpEndpoint       string
	TracingEnabled     bool
}

type DatabaseConfig struct {
	Connection string // empty disables the turn audit log
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

type AIConfig struct {
	LLMProvider    string // "ollama", "huggingface" or "none"
	LLMModel       string // e.g. "llama3", "qwen2.5"
	OllamaBaseURL  string
	HuggingFaceKey string
	HuggingFaceURL string
	RenderTimeout  time.Duration
}

type EngineConfig struct {
	SessionTTL      time.Duration
	CarrierKBPath   string // empty uses the embedded table
	LexiconPath     string
	StepsPath       string
	TrackingAPIURL  string // empty disables live lookups
	TrackingAPIKey  string
	TrackingTimeout time.Duration
	EscalationEmail string // hand-off inbox, empty disables mail
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			EscalationLogPath:  getEnv("ESCALATION_LOG_PATH", "logs/escalation.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			OtlpEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			TracingEnabled:     getEnv("OTEL_ENABLED", "false") == "true",
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "Tracking Support"),
		},
		Ai: AIConfig{
			LLMProvider:    getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:       getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			HuggingFaceKey: getEnv("HUGGINGFACE_API_KEY", ""),
			HuggingFaceURL: getEnv("HUGGINGFACE_BASE_URL", ""),
			RenderTimeout:  getEnvAsDuration("RENDER_TIMEOUT", 15*time.Second),
		},
		Engine: EngineConfig{
			SessionTTL:      getEnvAsDuration("SESSION_TTL", time.Hour),
			CarrierKBPath:   getEnv("CARRIER_KB_PATH", ""),
			LexiconPath:     getEnv("LEXICON_PATH", ""),
			StepsPath:       getEnv("STEPS_PATH", ""),
			TrackingAPIURL:  getEnv("TRACKING_API_URL", ""),
			TrackingAPIKey:  getEnv("TRACKING_API_KEY", ""),
			TrackingTimeout: getEnvAsDuration("TRACKING_TIMEOUT", 2*time.Second),
			EscalationEmail: getEnv("ESCALATION_EMAIL", ""),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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

// getEnvAsDuration accepts Go durations ("90m") or plain seconds
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
