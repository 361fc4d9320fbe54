package embedding

import (
	"context"
	"fmt"
)

type FactoryConfig struct {
	Provider      string
	Model         string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIKey     string
	GeminiKey     string
}

func NewEmbeddingProvider(ctx context.Context, cfg FactoryConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL, cfg.Model), nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.GeminiKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
