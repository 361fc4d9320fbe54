package factory

import (
	"context"
	"fmt"

	"rag-agent-be/pkg/llm"
	"rag-agent-be/pkg/llm/gemini"
	"rag-agent-be/pkg/llm/ollama"
	"rag-agent-be/pkg/llm/openai"
)

type Config struct {
	Provider      string
	Model         string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIKey     string
	GeminiKey     string
	RPS           float64
	Burst         int
}

func NewLLMProvider(ctx context.Context, cfg Config) (llm.LLMProvider, error) {
	var provider llm.LLMProvider
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		provider = ollama.NewOllamaProvider(baseURL, cfg.Model)
	case "openai":
		provider = openai.NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model)
	case "gemini":
		p, err := gemini.NewGeminiProvider(ctx, cfg.GeminiKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	return llm.NewThrottledProvider(provider, cfg.RPS, cfg.Burst), nil
}
