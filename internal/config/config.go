package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"rag-agent-be/internal/constant"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Chat     ChatConfig
	Citation CitationConfig
	Persist  PersistConfig
	Events   EventsConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	AuditLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	OpenAI       string
}

type AIConfig struct {
	EmbeddingProvider string // "ollama", "openai" or "gemini"
	EmbeddingModel    string
	VectorDimensions  int
	OllamaBaseURL     string
	OpenAIBaseURL     string
	LLMProvider       string // "ollama", "openai" or "gemini"
	LLMModel          string
	Temperature       float64
	MaxOutputTokens   int
	GenerationRPS     float64
	GenerationBurst   int

	EmbeddingTimeout  time.Duration
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration

	EmbeddingCacheTTL time.Duration
}

type ChatConfig struct {
	SystemPrompt      string
	HistoryLimit      int
	RetrievalTopK     int
	RetrievalMinScore float64
	MaxMessageChars   int
	MaxSelectionChars int
	PromptBudgetChars int
	PassageMaxChars   int
	SelectionTTL      time.Duration
	SessionIdleTTL    time.Duration
	TurnTimeout       time.Duration
}

type CitationConfig struct {
	NGramSize        int
	MinOverlap       float64
	MinFragmentWords int
	MaxCitations     int
}

type PersistConfig struct {
	MaxAttempts  int
	BackoffMax   time.Duration
	WriteTimeout time.Duration
}

type EventsConfig struct {
	TurnTopic string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			AuditLogFilePath:   getEnv("AUDIT_LOG_FILE_PATH", "logs/chat_audit.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
			VectorDimensions:  getEnvAsInt("VECTOR_DIMENSIONS", 768),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", ""),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.3),
			MaxOutputTokens:   getEnvAsInt("LLM_MAX_OUTPUT_TOKENS", 1000),
			GenerationRPS:     getEnvAsFloat("GENERATION_RPS", 0),
			GenerationBurst:   getEnvAsInt("GENERATION_BURST", 1),
			EmbeddingTimeout:  getEnvAsDuration("EMBEDDING_TIMEOUT", 1500*time.Millisecond),
			RetrievalTimeout:  getEnvAsDuration("RETRIEVAL_TIMEOUT", 1500*time.Millisecond),
			GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 4*time.Second),
			EmbeddingCacheTTL: getEnvAsDuration("EMBEDDING_CACHE_TTL", time.Hour),
		},
		Chat: ChatConfig{
			SystemPrompt:      getEnv("CHAT_SYSTEM_PROMPT", constant.DefaultSystemPrompt),
			HistoryLimit:      getEnvAsInt("CHAT_HISTORY_LIMIT", 10),
			RetrievalTopK:     getEnvAsInt("RETRIEVAL_TOP_K", 3),
			RetrievalMinScore: getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0),
			MaxMessageChars:   getEnvAsInt("CHAT_MAX_MESSAGE_CHARS", 4000),
			MaxSelectionChars: getEnvAsInt("SELECTION_MAX_CHARS", 4000),
			PromptBudgetChars: getEnvAsInt("PROMPT_BUDGET_CHARS", 16000),
			PassageMaxChars:   getEnvAsInt("PASSAGE_MAX_CHARS", 500),
			SelectionTTL:      getEnvAsDuration("SELECTION_TTL", 30*time.Minute),
			SessionIdleTTL:    getEnvAsDuration("SESSION_IDLE_TTL", 24*time.Hour),
			TurnTimeout:       getEnvAsDuration("CHAT_TURN_TIMEOUT", 5*time.Second),
		},
		Citation: CitationConfig{
			NGramSize:        getEnvAsInt("CITATION_NGRAM_SIZE", 4),
			MinOverlap:       getEnvAsFloat("CITATION_MIN_OVERLAP", 0.2),
			MinFragmentWords: getEnvAsInt("CITATION_MIN_FRAGMENT_WORDS", 8),
			MaxCitations:     getEnvAsInt("CITATION_MAX", 3),
		},
		Persist: PersistConfig{
			MaxAttempts:  getEnvAsInt("PERSIST_MAX_ATTEMPTS", 3),
			BackoffMax:   getEnvAsDuration("PERSIST_BACKOFF_MAX", 2*time.Second),
			WriteTimeout: getEnvAsDuration("PERSIST_WRITE_TIMEOUT", 3*time.Second),
		},
		Events: EventsConfig{
			TurnTopic: getEnv("CHAT_TURN_TOPIC", "CHAT_TURN_COMPLETED"),
		},
	}
}

// Validate rejects configurations the chat pipeline cannot honour. The
// mandatory prompt parts (system prompt, a maximal message, a maximal
// selection and the fixed framing) must fit the prompt budget on their own.
func (c *Config) Validate() error {
	var errs []error

	positive := map[string]int{
		"CHAT_HISTORY_LIMIT":     c.Chat.HistoryLimit,
		"RETRIEVAL_TOP_K":        c.Chat.RetrievalTopK,
		"CHAT_MAX_MESSAGE_CHARS": c.Chat.MaxMessageChars,
		"SELECTION_MAX_CHARS":    c.Chat.MaxSelectionChars,
		"PROMPT_BUDGET_CHARS":    c.Chat.PromptBudgetChars,
		"PASSAGE_MAX_CHARS":      c.Chat.PassageMaxChars,
		"CITATION_NGRAM_SIZE":    c.Citation.NGramSize,
		"CITATION_MAX":           c.Citation.MaxCitations,
		"PERSIST_MAX_ATTEMPTS":   c.Persist.MaxAttempts,
		"VECTOR_DIMENSIONS":      c.Ai.VectorDimensions,
	}
	for key, value := range positive {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, value))
		}
	}

	if c.Chat.SelectionTTL <= 0 {
		errs = append(errs, errors.New("SELECTION_TTL must be positive"))
	}
	if c.Ai.GenerationTimeout <= 0 || c.Ai.EmbeddingTimeout <= 0 || c.Ai.RetrievalTimeout <= 0 {
		errs = append(errs, errors.New("provider timeouts must be positive"))
	}
	if c.Citation.MinOverlap <= 0 || c.Citation.MinOverlap > 1 {
		errs = append(errs, fmt.Errorf("CITATION_MIN_OVERLAP must be in (0, 1], got %v", c.Citation.MinOverlap))
	}

	mandatory := len([]rune(c.Chat.SystemPrompt)) + c.Chat.MaxMessageChars + c.Chat.MaxSelectionChars + constant.PromptFramingReserve
	if mandatory > c.Chat.PromptBudgetChars {
		errs = append(errs, fmt.Errorf(
			"PROMPT_BUDGET_CHARS=%d cannot hold system prompt, message and selection (%d chars)",
			c.Chat.PromptBudgetChars, mandatory,
		))
	}

	return errors.Join(errs...)
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

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("1500ms") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.ParseFloat(strValue, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return fallback
}
