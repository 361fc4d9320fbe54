package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"rag-agent-be/internal/constant"
	"rag-agent-be/internal/dto"
	"rag-agent-be/internal/observability"
	"rag-agent-be/internal/pkg/serverutils"
	"rag-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatbotService struct {
	lastChat      *dto.SendChatRequest
	lastSelection *dto.SubmitSelectionRequest
	chatErr       error
	chatCtxErr    error
}

func (s *stubChatbotService) SendChat(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	s.lastChat = req
	s.chatCtxErr = ctx.Err()
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return &dto.SendChatResponse{
		Response:  "answer",
		SessionId: "s-1",
		Citations: []string{"ch1"},
		Outcome:   constant.TurnOutcomeSuccess,
	}, nil
}

func (s *stubChatbotService) SubmitSelection(ctx context.Context, req *dto.SubmitSelectionRequest) (*dto.SubmitSelectionResponse, error) {
	s.lastSelection = req
	return &dto.SubmitSelectionResponse{Status: constant.SelectionSavedStatus, SessionId: "s-1"}, nil
}

func (s *stubChatbotService) GetChatHistory(ctx context.Context, sessionId string) (*dto.GetChatHistoryResponse, error) {
	if sessionId != "s-1" {
		return nil, &service.ChatError{Code: constant.ErrorCodeNotFound, Err: service.ErrSessionNotFound}
	}
	return &dto.GetChatHistoryResponse{SessionId: sessionId, Turns: []*dto.ChatTurnResponse{}}, nil
}

func newChatApp(svc service.IChatbotService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewChatbotController(svc).RegisterRoutes(app.Group("/api"))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestSendChat(t *testing.T) {
	svc := &stubChatbotService{}
	app := newChatApp(svc)

	status, body := postJSON(t, app, "/api/chat", `{"message":"What is ZMP?","session_id":"s-1"}`, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, "answer", body["response"])
	assert.Equal(t, "s-1", body["session_id"])
	assert.Equal(t, []interface{}{"ch1"}, body["citations"])
	assert.Equal(t, "What is ZMP?", svc.lastChat.Message)
	assert.NoError(t, svc.chatCtxErr, "the turn runs on a live context")
}

func TestSendChatRequestIdHeader(t *testing.T) {
	svc := &stubChatbotService{}
	app := newChatApp(svc)

	postJSON(t, app, "/api/chat", `{"message":"q"}`, map[string]string{"X-Request-ID": "req-9"})
	assert.Equal(t, "req-9", svc.lastChat.RequestId)

	postJSON(t, app, "/api/chat", `{"message":"q","request_id":"body-key"}`, map[string]string{"X-Request-ID": "req-9"})
	assert.Equal(t, "body-key", svc.lastChat.RequestId, "body field wins over the header")
}

func TestSendChatErrors(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		chatErr       error
		wantStatus    int
		wantErrorCode string
		wantSession   interface{}
	}{
		{
			name:          "missing message",
			body:          `{"session_id":"s-1"}`,
			wantStatus:    400,
			wantErrorCode: constant.ErrorCodeInvalidInput,
		},
		{
			name:          "malformed body",
			body:          `{"message":`,
			wantStatus:    400,
			wantErrorCode: constant.ErrorCodeInvalidInput,
		},
		{
			name: "generation failure keeps the session",
			body: `{"message":"q"}`,
			chatErr: &service.ChatError{
				Code:      constant.ErrorCodeUpstreamGeneration,
				SessionID: "s-7",
				Err:       service.ErrUpstreamGeneration,
			},
			wantStatus:    502,
			wantErrorCode: constant.ErrorCodeUpstreamGeneration,
			wantSession:   "s-7",
		},
		{
			name: "cancelled turn",
			body: `{"message":"q"}`,
			chatErr: &service.ChatError{
				Code:      constant.ErrorCodeRequestCancelled,
				SessionID: "s-8",
				Err:       context.Canceled,
			},
			wantStatus:    499,
			wantErrorCode: constant.ErrorCodeRequestCancelled,
			wantSession:   "s-8",
		},
		{
			name:          "unexpected error",
			body:          `{"message":"q"}`,
			chatErr:       errors.New("boom"),
			wantStatus:    500,
			wantErrorCode: constant.ErrorCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newChatApp(&stubChatbotService{chatErr: tt.chatErr})
			status, body := postJSON(t, app, "/api/chat", tt.body, nil)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantErrorCode, body["error_code"])
			assert.Equal(t, tt.wantSession, body["session_id"])
		})
	}
}

func TestSubmitSelection(t *testing.T) {
	svc := &stubChatbotService{}
	app := newChatApp(svc)

	status, body := postJSON(t, app, "/api/chat/selection", `{"selected_text":"ZMP criterion","session_id":"s-1"}`, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, constant.SelectionSavedStatus, body["status"])
	assert.Equal(t, "s-1", body["session_id"])
	assert.Equal(t, "ZMP criterion", svc.lastSelection.SelectedText)

	status, _ = postJSON(t, app, "/api/chat/selection", `{"session_id":"s-1"}`, nil)
	assert.Equal(t, 400, status)
}

func TestGetChatHistory(t *testing.T) {
	app := newChatApp(&stubChatbotService{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/chat/s-1/history", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var ok serverutils.BaseResponse[dto.GetChatHistoryResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	assert.True(t, ok.Success)
	assert.Equal(t, "s-1", ok.Data.SessionId)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/chat/other/history", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHealthController(t *testing.T) {
	checker := observability.NewHealthChecker()
	checker.RegisterCheck(&observability.HealthCheck{
		Name:      "generation",
		Critical:  true,
		CheckFunc: func(ctx context.Context) error { return nil },
	})
	metrics := observability.NewMetrics()

	app := fiber.New()
	NewHealthController(checker, metrics).RegisterRoutes(app)

	t.Run("liveness", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, constant.LivenessStatus, body["status"])
	})

	t.Run("ready", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var body serverutils.BaseResponse[dto.HealthResponse]
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Data.Checks, 1)
		assert.Equal(t, "generation", body.Data.Checks[0].Name)
		assert.Equal(t, string(observability.HealthStatusHealthy), body.Data.Status)
	})

	t.Run("critical failure is 503", func(t *testing.T) {
		checker.RegisterCheck(&observability.HealthCheck{
			Name:      "persistence",
			Critical:  true,
			CheckFunc: func(ctx context.Context) error { return errors.New("connection refused") },
		})
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, 503, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		metrics.RecordTurn(constant.TurnOutcomeSuccess, 0)
		resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(raw), "rag_agent_chat_turns_total")
	})
}
