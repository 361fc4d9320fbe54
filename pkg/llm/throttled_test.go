package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls atomic.Int32
}

func (c *countingProvider) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

func (c *countingProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return c.Chat(ctx, []Message{{Role: "user", Content: prompt}}, opts...)
}

func TestNewThrottledProviderDisabled(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, inner, NewThrottledProvider(inner, 0, 5))
}

func TestThrottledProviderWaitHonoursContext(t *testing.T) {
	inner := &countingProvider{}
	p := NewThrottledProvider(inner, 0.001, 1)

	_, err := p.Generate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestApplyOptions(t *testing.T) {
	o := ApplyOptions()
	assert.Equal(t, 0.3, o.Temperature)
	assert.Zero(t, o.MaxTokens)

	o = ApplyOptions(WithTemperature(0.9), WithMaxTokens(42), WithModel("m"))
	assert.Equal(t, 0.9, o.Temperature)
	assert.Equal(t, 42, o.MaxTokens)
	assert.Equal(t, "m", o.Model)
}
