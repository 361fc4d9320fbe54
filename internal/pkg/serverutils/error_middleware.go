package serverutils

import (
	"errors"

	"rag-agent-be/internal/constant"

	"github.com/gofiber/fiber/v2"
)

// StatusClientClosedRequest is reported when the caller went away mid-turn.
const StatusClientClosedRequest = 499

// CodedError is an error that carries a chat error code and, optionally, the
// session it happened in.
type CodedError interface {
	error
	ErrorCode() string
	ErrorSessionID() string
}

var statusByCode = map[string]int{
	constant.ErrorCodeInvalidInput:       fiber.StatusBadRequest,
	constant.ErrorCodeNotFound:           fiber.StatusNotFound,
	constant.ErrorCodeUpstreamGeneration: fiber.StatusBadGateway,
	constant.ErrorCodePersistence:        fiber.StatusServiceUnavailable,
	constant.ErrorCodeRequestCancelled:   StatusClientClosedRequest,
	constant.ErrorCodeInternal:           fiber.StatusInternalServerError,
}

// ErrorHandlerMiddleware turns errors returned by handlers into the JSON
// error envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return writeError(ctx, err)
	}
}

func writeError(ctx *fiber.Ctx, err error) error {
	var coded CodedError
	if errors.As(err, &coded) {
		status, ok := statusByCode[coded.ErrorCode()]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		message := coded.Error()
		if status == fiber.StatusInternalServerError {
			message = "Internal server error"
		}
		return ctx.Status(status).JSON(ChatErrorResponse(status, coded.ErrorCode(), message, coded.ErrorSessionID()))
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			ChatErrorResponse(fiber.StatusBadRequest, constant.ErrorCodeInvalidInput, validationErr.Message, ""),
		)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		errorCode := constant.ErrorCodeInternal
		switch {
		case fiberErr.Code == fiber.StatusNotFound:
			errorCode = constant.ErrorCodeNotFound
		case fiberErr.Code < fiber.StatusInternalServerError:
			errorCode = constant.ErrorCodeInvalidInput
		}
		return ctx.Status(fiberErr.Code).JSON(ChatErrorResponse(fiberErr.Code, errorCode, fiberErr.Message, ""))
	}

	return ctx.Status(fiber.StatusInternalServerError).JSON(
		ChatErrorResponse(fiber.StatusInternalServerError, constant.ErrorCodeInternal, "Internal server error", ""),
	)
}
