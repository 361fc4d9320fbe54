package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rag-agent-be/internal/config"
	"rag-agent-be/internal/constant"
	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/repository/contract"
	"rag-agent-be/internal/repository/memory"
	"rag-agent-be/internal/repository/unitofwork"
	"rag-agent-be/pkg/embedding"
	"rag-agent-be/pkg/events"
	"rag-agent-be/pkg/llm"
)

type logEntry struct {
	level   string
	module  string
	message string
	details map[string]interface{}
}

type recordingLogger struct {
	mu   sync.Mutex
	logs []logEntry
}

func (l *recordingLogger) record(level, module, message string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, logEntry{level: level, module: module, message: message, details: details})
}

func (l *recordingLogger) Debug(module, message string, details map[string]interface{}) {
	l.record("DEBUG", module, message, details)
}

func (l *recordingLogger) Info(module, message string, details map[string]interface{}) {
	l.record("INFO", module, message, details)
}

func (l *recordingLogger) Warn(module, message string, details map[string]interface{}) {
	l.record("WARN", module, message, details)
}

func (l *recordingLogger) Error(module, message string, details map[string]interface{}) {
	l.record("ERROR", module, message, details)
}

func (l *recordingLogger) Sync() error { return nil }

func (l *recordingLogger) entries() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.logs...)
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{1, 0}}}, nil
}

// fakeLLM answers with respond and keeps every prompt it was sent.
type fakeLLM struct {
	mu      sync.Mutex
	prompts [][]llm.Message
	respond func(ctx context.Context, msgs []llm.Message) (string, error)
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, history)
	n := len(f.prompts)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(ctx, history)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "answer " + string(rune('A'+n-1)), nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: constant.ChatMessageRoleUser, Content: prompt}}, options...)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// lastBody is the user message of the most recent prompt.
func (f *fakeLLM) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	msgs := f.prompts[len(f.prompts)-1]
	return msgs[len(msgs)-1].Content
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, e)
	return nil
}

func (p *recordingPublisher) events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.got...)
}

// flakyFactory fails the next N turn appends before delegating.
type flakyFactory struct {
	*memory.RepositoryFactory
	appendFailures atomic.Int32
}

func (f *flakyFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &flakyUoW{UnitOfWork: f.RepositoryFactory.NewUnitOfWork(ctx), factory: f}
}

type flakyUoW struct {
	unitofwork.UnitOfWork
	factory *flakyFactory
}

func (u *flakyUoW) ChatTurnRepository() contract.ChatTurnRepository {
	return &flakyTurns{ChatTurnRepository: u.UnitOfWork.ChatTurnRepository(), factory: u.factory}
}

type flakyTurns struct {
	contract.ChatTurnRepository
	factory *flakyFactory
}

func (r *flakyTurns) Append(ctx context.Context, turn *entity.ChatTurn) (bool, error) {
	if r.factory.appendFailures.Add(-1) >= 0 {
		return false, errors.New("connection reset by peer")
	}
	return r.ChatTurnRepository.Append(ctx, turn)
}

func testConfig() *config.Config {
	return &config.Config{
		Ai: config.AIConfig{
			VectorDimensions:  2,
			Temperature:       0.3,
			MaxOutputTokens:   200,
			EmbeddingTimeout:  time.Second,
			RetrievalTimeout:  time.Second,
			GenerationTimeout: time.Second,
		},
		Chat: config.ChatConfig{
			SystemPrompt:      constant.DefaultSystemPrompt,
			HistoryLimit:      10,
			RetrievalTopK:     3,
			RetrievalMinScore: -1,
			MaxMessageChars:   4000,
			MaxSelectionChars: 4000,
			PromptBudgetChars: 16000,
			PassageMaxChars:   500,
			SelectionTTL:      30 * time.Minute,
			SessionIdleTTL:    24 * time.Hour,
			TurnTimeout:       5 * time.Second,
		},
		Citation: config.CitationConfig{NGramSize: 4, MinOverlap: 0.2, MinFragmentWords: 8, MaxCitations: 3},
		Persist:  config.PersistConfig{MaxAttempts: 3, BackoffMax: 5 * time.Millisecond, WriteTimeout: time.Second},
	}
}
