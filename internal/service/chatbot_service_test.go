package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"rag-agent-be/internal/config"
	"rag-agent-be/internal/constant"
	"rag-agent-be/internal/dto"
	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/repository/memory"
	"rag-agent-be/internal/repository/unitofwork"
	"rag-agent-be/pkg/events"
	"rag-agent-be/pkg/llm"
	"rag-agent-be/pkg/rag/prompt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	locomotionText = "Bipedal locomotion alternates single and double support phases while the controller shifts weight between both legs."
	kinematicsText = "Forward kinematics maps joint angles to the pose of the end effector using the chain of link transforms."
)

type harness struct {
	memory    *memory.RepositoryFactory
	embedder  *fakeEmbedder
	llm       *fakeLLM
	publisher *recordingPublisher
	logger    *recordingLogger
	svc       IChatbotService
}

func newHarness(t *testing.T, cfg *config.Config, factory unitofwork.RepositoryFactory) *harness {
	t.Helper()
	mem := memory.NewRepositoryFactory()
	if factory == nil {
		factory = mem
	} else if f, ok := factory.(*flakyFactory); ok {
		mem = f.RepositoryFactory
	}

	// two passages scored 0.9 and 0.7 against the query vector {1, 0}
	require.NoError(t, mem.Passages.CreateBulk(context.Background(), []*entity.DocumentPassage{
		{SourceId: "ch3-locomotion", Content: locomotionText, Embedding: unitVector(0.9)},
		{SourceId: "ch2-kinematics", Content: kinematicsText, Embedding: unitVector(0.7)},
	}))

	h := &harness{
		memory:    mem,
		embedder:  &fakeEmbedder{},
		llm:       &fakeLLM{},
		publisher: &recordingPublisher{},
		logger:    &recordingLogger{},
	}
	h.svc = NewChatbotService(cfg, factory, h.embedder, h.llm, h.publisher, nil, h.logger)
	return h
}

func unitVector(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func chatError(t *testing.T, err error) *ChatError {
	t.Helper()
	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	return chatErr
}

func TestSendChatNewSession(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.llm.respond = func(ctx context.Context, msgs []llm.Message) (string, error) {
		return "Bipedal locomotion alternates single and double support phases.", nil
	}

	res, err := h.svc.SendChat(context.Background(), &dto.SendChatRequest{Message: "What is bipedal locomotion?"})
	require.NoError(t, err)

	id, err := uuid.Parse(res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	assert.Equal(t, constant.TurnOutcomeSuccess, res.Outcome)
	assert.LessOrEqual(t, len(res.Citations), 2)
	assert.Equal(t, []string{"ch3-locomotion"}, res.Citations)

	body := h.llm.lastBody()
	assert.Less(t, strings.Index(body, locomotionText), strings.Index(body, kinematicsText), "passages by descending score")

	hist, err := h.svc.GetChatHistory(context.Background(), res.SessionId)
	require.NoError(t, err)
	require.Len(t, hist.Turns, 2)
	assert.Equal(t, constant.ChatMessageRoleUser, hist.Turns[0].Role)
	assert.Equal(t, "What is bipedal locomotion?", hist.Turns[0].Content)
	assert.Equal(t, constant.ChatMessageRoleAssistant, hist.Turns[1].Role)
	assert.Equal(t, []string{"ch3-locomotion"}, hist.Turns[1].Citations)
	assert.True(t, hist.Active)

	published := h.publisher.events()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeChatTurnCompleted, published[0].EventType())
	assert.Equal(t, constant.TurnOutcomeSuccess, published[0].Payload()["outcome"])
}

func TestSelectionPrecedesPassages(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	first, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "hello"})
	require.NoError(t, err)
	sessionID := first.SessionId

	sel, err := h.svc.SubmitSelection(ctx, &dto.SubmitSelectionRequest{
		SelectedText: "Inverse kinematics defines joint angles.",
		SessionId:    sessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, constant.SelectionSavedStatus, sel.Status)
	assert.Equal(t, sessionID, sel.SessionId)

	_, err = h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "Explain this", SessionId: sessionID})
	require.NoError(t, err)

	body := h.llm.lastBody()
	selAt := strings.Index(body, "Inverse kinematics defines joint angles.")
	require.GreaterOrEqual(t, selAt, 0)
	assert.Less(t, selAt, strings.Index(body, locomotionText))
	assert.Less(t, selAt, strings.Index(body, kinematicsText))
	assert.Contains(t, body, "user: hello", "earlier turns are in the history section")
}

func TestGenerationTimeoutKeepsUserTurn(t *testing.T) {
	cfg := testConfig()
	cfg.Ai.GenerationTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg, nil)
	ctx := context.Background()

	first, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "warm up"})
	require.NoError(t, err)

	h.llm.respond = func(ctx context.Context, msgs []llm.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	_, err = h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "this one times out", SessionId: first.SessionId})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamGeneration)

	chatErr := chatError(t, err)
	assert.Equal(t, constant.ErrorCodeUpstreamGeneration, chatErr.Code)
	assert.Equal(t, first.SessionId, chatErr.SessionID)

	hist, err := h.svc.GetChatHistory(ctx, first.SessionId)
	require.NoError(t, err)
	require.Len(t, hist.Turns, 3)
	last := hist.Turns[2]
	assert.Equal(t, constant.ChatMessageRoleUser, last.Role)
	assert.Equal(t, "this one times out", last.Content)
}

func TestUnknownSessionStartsNewOne(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	for _, raw := range []string{uuid.NewString(), "definitely-not-a-session"} {
		res, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "hi", SessionId: raw})
		require.NoError(t, err)
		assert.NotEqual(t, raw, res.SessionId)
		_, err = uuid.Parse(res.SessionId)
		assert.NoError(t, err)
	}

	count, err := h.memory.Sessions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRetrievalFailureDegrades(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.embedder.err = errors.New("embedding service unavailable")

	res, err := h.svc.SendChat(context.Background(), &dto.SendChatRequest{Message: "What is bipedal locomotion?"})
	require.NoError(t, err)
	assert.Equal(t, constant.TurnOutcomeDegraded, res.Outcome)
	assert.Empty(t, res.Citations)
	assert.NotNil(t, res.Citations)
	assert.NotContains(t, h.llm.lastBody(), "<book_context>")

	published := h.publisher.events()
	require.Len(t, published, 1)
	assert.Equal(t, "embedding", published[0].Payload()["degraded_stage"])
}

func TestCitationsOnlyFromIncludedPassages(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.SystemPrompt = "sys"
	query := "Tell me about legs"
	// room for the top passage only
	cfg.Chat.PromptBudgetChars = len(cfg.Chat.SystemPrompt) + len(query) + prompt.MandatoryFraming() + len(locomotionText) + 40
	h := newHarness(t, cfg, nil)

	// the answer quotes the passage that was cut from the prompt
	h.llm.respond = func(ctx context.Context, msgs []llm.Message) (string, error) {
		return kinematicsText, nil
	}

	res, err := h.svc.SendChat(context.Background(), &dto.SendChatRequest{Message: query})
	require.NoError(t, err)
	body := h.llm.lastBody()
	require.Contains(t, body, locomotionText)
	require.NotContains(t, body, kinematicsText)
	assert.Empty(t, res.Citations)
}

func TestSendChatRejectsInvalidInput(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.MaxMessageChars = 10
	h := newHarness(t, cfg, nil)

	for _, msg := range []string{"", "   \n\t", strings.Repeat("x", 11)} {
		_, err := h.svc.SendChat(context.Background(), &dto.SendChatRequest{Message: msg})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, constant.ErrorCodeInvalidInput, chatError(t, err).Code)
	}

	count, err := h.memory.Sessions.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "rejected input has no side effects")
	assert.Zero(t, h.llm.calls())
}

func TestSubmitSelection(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.MaxSelectionChars = 50
	h := newHarness(t, cfg, nil)
	ctx := context.Background()

	t.Run("creates a session for an unknown id", func(t *testing.T) {
		res, err := h.svc.SubmitSelection(ctx, &dto.SubmitSelectionRequest{SelectedText: "text", SessionId: uuid.NewString()})
		require.NoError(t, err)
		id := uuid.MustParse(res.SessionId)
		s, err := h.memory.Sessions.FindById(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "text", s.Selection.Text)
	})

	t.Run("identical text is idempotent", func(t *testing.T) {
		res, err := h.svc.SubmitSelection(ctx, &dto.SubmitSelectionRequest{SelectedText: "same words"})
		require.NoError(t, err)
		again, err := h.svc.SubmitSelection(ctx, &dto.SubmitSelectionRequest{SelectedText: "same words", SessionId: res.SessionId})
		require.NoError(t, err)
		assert.Equal(t, res.SessionId, again.SessionId)

		s, err := h.memory.Sessions.FindById(ctx, uuid.MustParse(res.SessionId))
		require.NoError(t, err)
		assert.Equal(t, "same words", s.Selection.Text)
	})

	t.Run("rejects empty and oversized text", func(t *testing.T) {
		for _, text := range []string{"", "  ", strings.Repeat("y", 51)} {
			_, err := h.svc.SubmitSelection(ctx, &dto.SubmitSelectionRequest{SelectedText: text})
			assert.ErrorIs(t, err, ErrInvalidInput)
		}
	})

	assert.Zero(t, h.llm.calls(), "selection never calls a provider")
}

func TestTurnsAreOrdered(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	res, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "q1"})
	require.NoError(t, err)
	for _, q := range []string{"q2", "q3"} {
		_, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: q, SessionId: res.SessionId})
		require.NoError(t, err)
	}

	hist, err := h.svc.GetChatHistory(ctx, res.SessionId)
	require.NoError(t, err)
	require.Len(t, hist.Turns, 6)
	for i := 1; i < len(hist.Turns); i++ {
		assert.False(t, hist.Turns[i].CreatedAt.Before(hist.Turns[i-1].CreatedAt))
		assert.Greater(t, hist.Turns[i].Id, hist.Turns[i-1].Id)
	}
	assert.Equal(t, "q1", hist.Turns[0].Content)
	assert.Equal(t, "q3", hist.Turns[4].Content)
}

func TestDuplicateRequestReturnsStoredAnswer(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	first, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "q", RequestId: "req-1"})
	require.NoError(t, err)
	retried, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "q", SessionId: first.SessionId, RequestId: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, first.Response, retried.Response)
	hist, err := h.svc.GetChatHistory(ctx, first.SessionId)
	require.NoError(t, err)
	assert.Len(t, hist.Turns, 2)
}

func TestPersistenceRetriesAndFailure(t *testing.T) {
	t.Run("transient failures are retried", func(t *testing.T) {
		factory := &flakyFactory{RepositoryFactory: memory.NewRepositoryFactory()}
		factory.appendFailures.Store(2)
		h := newHarness(t, testConfig(), factory)

		res, err := h.svc.SendChat(context.Background(), &dto.SendChatRequest{Message: "q"})
		require.NoError(t, err)
		hist, err := h.svc.GetChatHistory(context.Background(), res.SessionId)
		require.NoError(t, err)
		assert.Len(t, hist.Turns, 2)
	})

	t.Run("exhausted retries fail the turn", func(t *testing.T) {
		factory := &flakyFactory{RepositoryFactory: memory.NewRepositoryFactory()}
		factory.appendFailures.Store(100)
		h := newHarness(t, testConfig(), factory)

		_, err := h.svc.SendChat(context.Background(), &dto.SendChatRequest{Message: "q"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPersistence)
		chatErr := chatError(t, err)
		assert.Equal(t, constant.ErrorCodePersistence, chatErr.Code)
		assert.NotEmpty(t, chatErr.SessionID)
		assert.Zero(t, h.llm.calls())
	})
}

func TestCancelledRequestStillStoresUserTurn(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.SendChat(ctx, &dto.SendChatRequest{Message: "are you there?"})
	require.Error(t, err)
	chatErr := chatError(t, err)
	assert.Equal(t, constant.ErrorCodeRequestCancelled, chatErr.Code)

	hist, err := h.svc.GetChatHistory(context.Background(), chatErr.SessionID)
	require.NoError(t, err)
	require.Len(t, hist.Turns, 1)
	assert.Equal(t, "are you there?", hist.Turns[0].Content)
}

func TestGetChatHistoryErrors(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	_, err := h.svc.GetChatHistory(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.svc.GetChatHistory(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, constant.ErrorCodeNotFound, chatError(t, err).Code)
}
