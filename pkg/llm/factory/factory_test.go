package factory

import (
	"context"
	"testing"

	"rag-agent-be/pkg/llm"
	"rag-agent-be/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	p, err := NewLLMProvider(context.Background(), Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &ollama.OllamaProvider{}, p)

	p, err = NewLLMProvider(context.Background(), Config{Provider: "openai", OpenAIKey: "k", RPS: 2})
	require.NoError(t, err)
	assert.IsType(t, &llm.ThrottledProvider{}, p)

	_, err = NewLLMProvider(context.Background(), Config{Provider: "huggingface"})
	assert.Error(t, err)
}
