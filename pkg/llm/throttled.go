package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledProvider caps the outbound request rate of a provider. Waiting for
// a token honours the caller's context, so a saturated limiter surfaces as
// a timeout rather than an unbounded queue.
type ThrottledProvider struct {
	next    LLMProvider
	limiter *rate.Limiter
}

// NewThrottledProvider returns next unchanged when rps is not positive.
func NewThrottledProvider(next LLMProvider, rps float64, burst int) LLMProvider {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledProvider{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (p *ThrottledProvider) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation rate limit: %w", err)
	}
	return p.next.Chat(ctx, history, opts...)
}

func (p *ThrottledProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation rate limit: %w", err)
	}
	return p.next.Generate(ctx, prompt, opts...)
}

func (p *ThrottledProvider) Ping(ctx context.Context) error {
	if pinger, ok := p.next.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
