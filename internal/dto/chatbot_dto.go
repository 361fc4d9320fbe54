package dto

import "time"

// SendChatRequest is the body of POST /api/chat. Length limits are enforced
// by the service against the configured maximums.
type SendChatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionId string `json:"session_id,omitempty"`
	RequestId string `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

type SendChatResponse struct {
	Response  string   `json:"response"`
	SessionId string   `json:"session_id"`
	Citations []string `json:"citations"`
	// Outcome is "success", or "degraded" when answered without retrieval.
	Outcome string `json:"outcome"`
}

type SubmitSelectionRequest struct {
	SelectedText string `json:"selected_text" validate:"required"`
	SessionId    string `json:"session_id,omitempty"`
}

type SubmitSelectionResponse struct {
	Status    string `json:"status"`
	SessionId string `json:"session_id"`
}

type ChatTurnResponse struct {
	Id        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Citations []string  `json:"citations,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type GetChatHistoryResponse struct {
	SessionId    string              `json:"session_id"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActiveAt time.Time           `json:"last_active_at"`
	Active       bool                `json:"active"`
	Turns        []*ChatTurnResponse `json:"turns"`
}
