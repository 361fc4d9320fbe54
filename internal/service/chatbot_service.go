package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"rag-agent-be/internal/config"
	"rag-agent-be/internal/constant"
	"rag-agent-be/internal/dto"
	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/observability"
	"rag-agent-be/internal/pkg/logger"
	"rag-agent-be/internal/repository/contract"
	"rag-agent-be/internal/repository/unitofwork"
	"rag-agent-be/pkg/embedding"
	"rag-agent-be/pkg/events"
	"rag-agent-be/pkg/llm"
	"rag-agent-be/pkg/rag/citation"
	"rag-agent-be/pkg/rag/history"
	"rag-agent-be/pkg/rag/prompt"
	"rag-agent-be/pkg/rag/search"
	"rag-agent-be/pkg/rag/session"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const stageGeneration = "generation"

// IChatbotService defines the chatbot service interface
type IChatbotService interface {
	SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error)
	SubmitSelection(ctx context.Context, request *dto.SubmitSelectionRequest) (*dto.SubmitSelectionResponse, error)
	GetChatHistory(ctx context.Context, sessionId string) (*dto.GetChatHistoryResponse, error)
}

// chatbotService runs chat turns. Turns of different sessions share nothing
// but the stores. Turns of the same session are not serialised either: they
// may interleave, and their turns are stored in completion order.
type chatbotService struct {
	uowFactory  unitofwork.RepositoryFactory
	llmProvider llm.LLMProvider
	publisher   events.Publisher
	metrics     *observability.Metrics
	logger      logger.ILogger
	tracer      trace.Tracer

	retriever      *search.Retriever
	historyLoader  *history.Loader
	sessionManager *session.Manager
	assembler      *prompt.Assembler
	citations      *citation.Extractor

	chatCfg    config.ChatConfig
	aiCfg      config.AIConfig
	persistCfg config.PersistConfig
}

func NewChatbotService(
	cfg *config.Config,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	llmProvider llm.LLMProvider,
	publisher events.Publisher,
	metrics *observability.Metrics,
	log logger.ILogger,
) IChatbotService {
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &chatbotService{
		uowFactory:  uowFactory,
		llmProvider: llmProvider,
		publisher:   publisher,
		metrics:     metrics,
		logger:      log,
		tracer:      otel.Tracer("rag-agent-be/chatbot"),

		retriever: search.NewRetriever(embeddingProvider, uowFactory, search.Config{
			MinScore:         cfg.Chat.RetrievalMinScore,
			Dimensions:       cfg.Ai.VectorDimensions,
			EmbeddingTimeout: cfg.Ai.EmbeddingTimeout,
			RetrievalTimeout: cfg.Ai.RetrievalTimeout,
		}, log),
		historyLoader:  history.NewLoader(uowFactory, cfg.Chat.HistoryLimit, log),
		sessionManager: session.NewManager(cfg.Chat.SessionIdleTTL, cfg.Chat.SelectionTTL),
		assembler:      prompt.NewAssembler(cfg.Chat.PromptBudgetChars, cfg.Chat.PassageMaxChars),
		citations: citation.NewExtractor(citation.Config{
			NGramSize:        cfg.Citation.NGramSize,
			MinOverlap:       cfg.Citation.MinOverlap,
			MinFragmentWords: cfg.Citation.MinFragmentWords,
			MaxCitations:     cfg.Citation.MaxCitations,
		}),

		chatCfg:    cfg.Chat,
		aiCfg:      cfg.Ai,
		persistCfg: cfg.Persist,
	}
}

// openedTurn is the state of a turn once its session is known.
type openedTurn struct {
	resolution session.Resolution
	session    *entity.ChatSession
	userTurn   *entity.ChatTurn
}

func (o *openedTurn) sessionID() string {
	if o == nil || o.resolution.ID == uuid.Nil {
		return ""
	}
	return o.resolution.ID.String()
}

// turnReport collects what a turn did, for logs, metrics and the turn event.
type turnReport struct {
	requestKey    string
	started       time.Time
	degradedStage string
	passages      int
	history       int
}

func (cs *chatbotService) SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	report := &turnReport{started: time.Now()}

	message := strings.TrimSpace(request.Message)
	if message == "" {
		return nil, newChatError("", invalidInput("message must not be empty"))
	}
	if n := utf8.RuneCountInString(message); n > cs.chatCfg.MaxMessageChars {
		return nil, newChatError("", invalidInput("message is %d characters, the limit is %d", n, cs.chatCfg.MaxMessageChars))
	}

	report.requestKey = strings.TrimSpace(request.RequestId)
	if report.requestKey == "" {
		report.requestKey = uuid.NewString()
	}

	ctx, span := cs.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("chat.request_key", report.requestKey),
		attribute.Int("chat.message_chars", utf8.RuneCountInString(message)),
	))
	defer span.End()

	turnCtx, cancel := context.WithTimeout(ctx, cs.chatCfg.TurnTimeout)
	defer cancel()

	// The user turn and history load run alongside retrieval. Only a failure
	// to store the user turn aborts the group; retrieval degrades instead.
	var (
		opened    *openedTurn
		msgs      []llm.Message
		historyOK bool
		retrieved search.Outcome
	)
	g, gctx := errgroup.WithContext(turnCtx)
	g.Go(func() error {
		var err error
		opened, err = cs.openTurn(gctx, request.SessionId, message, report.requestKey)
		if err != nil {
			return err
		}
		msgs, historyOK = cs.historyLoader.LoadConversationHistory(gctx, opened.resolution.ID, opened.userTurn.Id)
		return nil
	})
	g.Go(func() error {
		retrieved = cs.retrieve(gctx, message)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, cs.failTurn(ctx, span, opened.sessionID(), report, err)
	}

	sessionID := opened.sessionID()
	span.SetAttributes(attribute.String("chat.session_id", sessionID))
	if retrieved.Degraded {
		report.degradedStage = retrieved.Stage
	} else if !historyOK {
		report.degradedStage = "history"
	}

	pc, err := cs.assembler.Assemble(prompt.Input{
		SystemPrompt: cs.chatCfg.SystemPrompt,
		Query:        message,
		Selection:    cs.sessionManager.FreshSelection(opened.session),
		Passages:     retrieved.Passages,
		History:      msgs,
	})
	if err != nil {
		return nil, cs.failTurn(ctx, span, sessionID, report, fmt.Errorf("assemble prompt: %w", err))
	}
	report.passages = len(pc.Passages)
	report.history = len(pc.History)

	answer, err := cs.generate(turnCtx, pc)
	if err != nil {
		return nil, cs.failTurn(ctx, span, sessionID, report, err)
	}

	assistant := &entity.ChatTurn{
		ChatSessionId: opened.resolution.ID,
		Role:          constant.ChatMessageRoleAssistant,
		Content:       answer,
		Citations:     cs.citations.Extract(answer, pc.Passages),
		TurnKey:       report.requestKey + ":assistant",
	}
	if err := cs.appendAssistantTurn(ctx, assistant); err != nil {
		return nil, cs.failTurn(ctx, span, sessionID, report, err)
	}

	outcome := constant.TurnOutcomeSuccess
	if report.degradedStage != "" {
		outcome = constant.TurnOutcomeDegraded
	}
	cs.completeTurn(ctx, span, sessionID, report, outcome, assistant)

	citations := assistant.Citations
	if citations == nil {
		citations = []string{}
	}
	return &dto.SendChatResponse{
		Response:  assistant.Content,
		SessionId: sessionID,
		Citations: citations,
		Outcome:   outcome,
	}, nil
}

// openTurn resolves the session, then touches it and stores the user turn in
// one transaction. The write outlives a client disconnect.
func (cs *chatbotService) openTurn(ctx context.Context, rawSessionId, message, requestKey string) (*openedTurn, error) {
	ctx, span := cs.tracer.Start(ctx, "chat.open_turn")
	defer span.End()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cs.persistCfg.WriteTimeout)
	defer cancel()

	res, err := retry(writeCtx, cs, "resolve_session", func() (session.Resolution, error) {
		return cs.sessionManager.Resolve(writeCtx, cs.uowFactory.NewUnitOfWork(writeCtx), rawSessionId)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: resolve session: %w", ErrPersistence, err)
	}
	opened := &openedTurn{resolution: res}
	if res.Reactivated {
		cs.logger.Info("CHATBOT", "Idle session reactivated", map[string]interface{}{
			"session_id":     res.ID.String(),
			"last_active_at": res.Existing.LastActiveAt,
		})
	}

	err = retryErr(writeCtx, cs, "user_turn", func() error {
		uow := cs.uowFactory.NewUnitOfWork(writeCtx)
		if err := uow.Begin(writeCtx); err != nil {
			return err
		}
		defer uow.Rollback()

		sess, err := cs.sessionManager.Touch(writeCtx, uow, res.ID)
		if err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		turn := &entity.ChatTurn{
			ChatSessionId: res.ID,
			Role:          constant.ChatMessageRoleUser,
			Content:       message,
			TurnKey:       requestKey + ":user",
		}
		if _, err := uow.ChatTurnRepository().Append(writeCtx, turn); err != nil {
			return fmt.Errorf("append user turn: %w", err)
		}
		if err := uow.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		opened.session = sess
		opened.userTurn = turn
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return opened, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return opened, nil
}

func (cs *chatbotService) retrieve(ctx context.Context, query string) search.Outcome {
	ctx, span := cs.tracer.Start(ctx, "chat.retrieve")
	defer span.End()

	out := cs.retriever.Retrieve(ctx, query, cs.chatCfg.RetrievalTopK)

	switch {
	case out.Degraded && out.Stage == search.StageEmbedding:
		cs.metrics.RecordProviderCall(search.StageEmbedding, out.EmbeddingLatency, out.Err)
	case out.Degraded:
		cs.metrics.RecordProviderCall(search.StageEmbedding, out.EmbeddingLatency, nil)
		cs.metrics.RecordProviderCall(search.StageRetrieval, out.RetrievalLatency, out.Err)
	default:
		cs.metrics.RecordProviderCall(search.StageEmbedding, out.EmbeddingLatency, nil)
		cs.metrics.RecordProviderCall(search.StageRetrieval, out.RetrievalLatency, nil)
	}

	span.SetAttributes(
		attribute.Int("chat.passages", len(out.Passages)),
		attribute.Bool("chat.retrieval_degraded", out.Degraded),
	)
	if out.Degraded {
		span.SetAttributes(attribute.String("chat.degraded_stage", out.Stage))
		span.RecordError(out.Err)
	}
	return out
}

func (cs *chatbotService) generate(ctx context.Context, pc *prompt.PromptContext) (string, error) {
	ctx, span := cs.tracer.Start(ctx, "chat.generate", trace.WithAttributes(
		attribute.Int("chat.prompt_chars", pc.Chars()),
	))
	defer span.End()

	genCtx, cancel := context.WithTimeout(ctx, cs.aiCfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	answer, err := cs.llmProvider.Chat(genCtx, pc.Messages(),
		llm.WithTemperature(cs.aiCfg.Temperature),
		llm.WithMaxTokens(cs.aiCfg.MaxOutputTokens),
	)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty completion")
	}
	cs.metrics.RecordProviderCall(stageGeneration, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", fmt.Errorf("%w: %w", ErrUpstreamGeneration, err)
	}
	return strings.TrimSpace(answer), nil
}

// appendAssistantTurn stores the answer. A retried request whose answer is
// already stored gets that stored answer back in turn.
func (cs *chatbotService) appendAssistantTurn(ctx context.Context, turn *entity.ChatTurn) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cs.persistCfg.WriteTimeout)
	defer cancel()

	created, err := retry(writeCtx, cs, "assistant_turn", func() (bool, error) {
		return cs.uowFactory.NewUnitOfWork(writeCtx).ChatTurnRepository().Append(writeCtx, turn)
	})
	if err != nil {
		return fmt.Errorf("%w: append assistant turn: %w", ErrPersistence, err)
	}
	if !created {
		cs.logger.Info("CHATBOT", "Duplicate request resolved to stored answer", map[string]interface{}{
			"session_id": turn.ChatSessionId.String(),
			"turn_id":    turn.Id,
		})
	}
	return nil
}

func (cs *chatbotService) completeTurn(ctx context.Context, span trace.Span, sessionID string, report *turnReport, outcome string, assistant *entity.ChatTurn) {
	latency := time.Since(report.started)
	cs.metrics.RecordTurn(outcome, latency)
	cs.metrics.RecordCitations(len(assistant.Citations))

	span.SetAttributes(
		attribute.String("chat.outcome", outcome),
		attribute.Int("chat.citations", len(assistant.Citations)),
	)

	cs.logger.Info("CHATBOT", "Chat turn completed", map[string]interface{}{
		"session_id":     sessionID,
		"request_key":    report.requestKey,
		"outcome":        outcome,
		"degraded_stage": report.degradedStage,
		"passages":       report.passages,
		"history":        report.history,
		"citations":      assistant.Citations,
		"latency_ms":     latency.Milliseconds(),
	})

	cs.publish(ctx, events.TurnCompleted{
		SessionID:       sessionID,
		RequestKey:      report.requestKey,
		AssistantTurnID: assistant.Id,
		Outcome:         outcome,
		DegradedStage:   report.degradedStage,
		Citations:       assistant.Citations,
		PassageCount:    report.passages,
		HistoryCount:    report.history,
		Latency:         latency,
		OccurredAt:      time.Now().UTC(),
	})
}

// failTurn records a failed turn and builds the error returned to the caller.
func (cs *chatbotService) failTurn(ctx context.Context, span trace.Span, sessionID string, report *turnReport, err error) error {
	chatErr := newChatError(sessionID, err)
	if errors.Is(ctx.Err(), context.Canceled) {
		chatErr.Code = constant.ErrorCodeRequestCancelled
	}

	latency := time.Since(report.started)
	cs.metrics.RecordTurn(constant.TurnOutcomeFailed, latency)

	span.RecordError(err)
	span.SetStatus(codes.Error, chatErr.Code)

	cs.logger.Error("CHATBOT", "Chat turn failed", map[string]interface{}{
		"session_id":  sessionID,
		"request_key": report.requestKey,
		"code":        chatErr.Code,
		"error":       err,
		"latency_ms":  latency.Milliseconds(),
	})

	cs.publish(ctx, events.TurnCompleted{
		SessionID:     sessionID,
		RequestKey:    report.requestKey,
		Outcome:       constant.TurnOutcomeFailed,
		DegradedStage: report.degradedStage,
		ErrorCode:     chatErr.Code,
		Latency:       latency,
		OccurredAt:    time.Now().UTC(),
	})
	return chatErr
}

func (cs *chatbotService) publish(ctx context.Context, event events.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := cs.publisher.Publish(pubCtx, event); err != nil {
		cs.metrics.RecordEventFailure()
		cs.logger.Warn("CHATBOT", "Failed to publish turn event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}

func (cs *chatbotService) SubmitSelection(ctx context.Context, request *dto.SubmitSelectionRequest) (*dto.SubmitSelectionResponse, error) {
	text := request.SelectedText
	if strings.TrimSpace(text) == "" {
		return nil, newChatError("", invalidInput("selected_text must not be empty"))
	}
	if n := utf8.RuneCountInString(text); n > cs.chatCfg.MaxSelectionChars {
		return nil, newChatError("", invalidInput("selected_text is %d characters, the limit is %d", n, cs.chatCfg.MaxSelectionChars))
	}

	writeCtx, cancel := context.WithTimeout(ctx, cs.persistCfg.WriteTimeout)
	defer cancel()

	res, err := retry(writeCtx, cs, "resolve_session", func() (session.Resolution, error) {
		return cs.sessionManager.Resolve(writeCtx, cs.uowFactory.NewUnitOfWork(writeCtx), request.SessionId)
	})
	if err != nil {
		return nil, newChatError("", fmt.Errorf("%w: resolve session: %w", ErrPersistence, err))
	}

	_, err = retry(writeCtx, cs, "selection", func() (*entity.ChatSession, error) {
		return cs.sessionManager.StageSelection(writeCtx, cs.uowFactory.NewUnitOfWork(writeCtx), res.ID, text)
	})
	if err != nil {
		chatErr := newChatError(res.ID.String(), fmt.Errorf("%w: stage selection: %w", ErrPersistence, err))
		if errors.Is(ctx.Err(), context.Canceled) {
			chatErr.Code = constant.ErrorCodeRequestCancelled
		}
		return nil, chatErr
	}

	cs.logger.Info("CHATBOT", "Selection staged", map[string]interface{}{
		"session_id": res.ID.String(),
		"new":        res.IsNew(),
		"chars":      utf8.RuneCountInString(text),
	})

	return &dto.SubmitSelectionResponse{
		Status:    constant.SelectionSavedStatus,
		SessionId: res.ID.String(),
	}, nil
}

func (cs *chatbotService) GetChatHistory(ctx context.Context, sessionId string) (*dto.GetChatHistoryResponse, error) {
	id, err := uuid.Parse(strings.TrimSpace(sessionId))
	if err != nil {
		return nil, newChatError("", invalidInput("session_id is not a valid id"))
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	sess, err := uow.ChatSessionRepository().FindById(ctx, id)
	if err != nil {
		return nil, newChatError(sessionId, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	if sess == nil {
		return nil, newChatError("", ErrSessionNotFound)
	}

	turns, err := uow.ChatTurnRepository().FindBySession(ctx, id)
	if err != nil {
		return nil, newChatError(sessionId, fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	res := &dto.GetChatHistoryResponse{
		SessionId:    sess.Id.String(),
		CreatedAt:    sess.CreatedAt,
		LastActiveAt: sess.LastActiveAt,
		Active:       sess.IsActive(cs.sessionManager.Now(), cs.chatCfg.SessionIdleTTL),
		Turns:        make([]*dto.ChatTurnResponse, 0, len(turns)),
	}
	for _, t := range turns {
		res.Turns = append(res.Turns, &dto.ChatTurnResponse{
			Id:        t.Id,
			Role:      t.Role,
			Content:   t.Content,
			Citations: t.Citations,
			CreatedAt: t.CreatedAt,
		})
	}
	return res, nil
}

// retry runs op with bounded exponential backoff. Constraint violations are
// not retried.
func retry[T any](ctx context.Context, cs *chatbotService, operation string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(50*time.Millisecond, cs.persistCfg.BackoffMax)
	b.MaxInterval = cs.persistCfg.BackoffMax

	attempts := cs.persistCfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && errors.Is(err, contract.ErrConstraintViolation) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			cs.metrics.RecordPersistRetry(operation)
			cs.logger.Warn("CHATBOT", "Retrying persistence", map[string]interface{}{
				"operation": operation,
				"error":     err.Error(),
				"backoff":   next.String(),
			})
		}),
	)
}

func retryErr(ctx context.Context, cs *chatbotService, operation string, op func() error) error {
	_, err := retry(ctx, cs, operation, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
