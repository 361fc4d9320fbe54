package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

type openAIEmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	GetModel(ctx context.Context, modelID string) (openai.Model, error)
}

// OpenAIProvider works with OpenAI and any server speaking its embeddings API.
type OpenAIProvider struct {
	client openAIEmbeddingClient
	model  string
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embedding: empty response")
	}
	return newResponse(resp.Data[0].Embedding), nil
}

func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.client.GetModel(ctx, p.model)
	return err
}
