package events

import "time"

const TypeChatTurnCompleted = "CHAT_TURN_COMPLETED"

// TurnCompleted describes a finished chat turn. Message text is not included.
type TurnCompleted struct {
	SessionID       string
	RequestKey      string
	AssistantTurnID int64
	Outcome         string
	DegradedStage   string
	ErrorCode       string
	Citations       []string
	PassageCount    int
	HistoryCount    int
	Latency         time.Duration
	OccurredAt      time.Time
}

func (t TurnCompleted) EventType() string {
	return TypeChatTurnCompleted
}

func (t TurnCompleted) Payload() map[string]interface{} {
	citations := t.Citations
	if citations == nil {
		citations = []string{}
	}
	return map[string]interface{}{
		"session_id":        t.SessionID,
		"request_key":       t.RequestKey,
		"assistant_turn_id": t.AssistantTurnID,
		"outcome":           t.Outcome,
		"degraded_stage":    t.DegradedStage,
		"error_code":        t.ErrorCode,
		"citations":         citations,
		"passage_count":     t.PassageCount,
		"history_count":     t.HistoryCount,
		"latency_ms":        t.Latency.Milliseconds(),
	}
}

func (t TurnCompleted) Timestamp() time.Time {
	return t.OccurredAt
}
