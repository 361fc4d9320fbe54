package service

import (
	"context"
	"errors"
	"fmt"

	"rag-agent-be/internal/constant"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUpstreamEmbedding  = errors.New("embedding provider failed")
	ErrUpstreamRetrieval  = errors.New("vector retrieval failed")
	ErrUpstreamGeneration = errors.New("generation provider failed")
	ErrPersistence        = errors.New("persistence failed")
	ErrSessionNotFound    = errors.New("session not found")
)

// ChatError is returned by the orchestrator once a session id is known, so
// that callers can hand the id back even when the turn fails.
type ChatError struct {
	Code      string
	SessionID string
	Err       error
}

func (e *ChatError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s (session %s): %v", e.Code, e.SessionID, e.Err)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

func newChatError(sessionID string, err error) *ChatError {
	return &ChatError{Code: codeFor(err), SessionID: sessionID, Err: err}
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return constant.ErrorCodeInvalidInput
	case errors.Is(err, ErrSessionNotFound):
		return constant.ErrorCodeNotFound
	case errors.Is(err, context.Canceled):
		return constant.ErrorCodeRequestCancelled
	case errors.Is(err, ErrUpstreamGeneration):
		return constant.ErrorCodeUpstreamGeneration
	case errors.Is(err, ErrPersistence):
		return constant.ErrorCodePersistence
	default:
		return constant.ErrorCodeInternal
	}
}

func (e *ChatError) ErrorCode() string {
	return e.Code
}

func (e *ChatError) ErrorSessionID() string {
	return e.SessionID
}
