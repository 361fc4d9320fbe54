package serverutils

type BaseResponse[T any] struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	SessionId string `json:"session_id,omitempty"`
	Data      T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) BaseResponse[T] {
	return BaseResponse[T]{
		Success: true,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) BaseResponse[any] {
	return BaseResponse[any]{
		Success: false,
		Code:    code,
		Message: message,
	}
}

// ChatErrorResponse carries the machine readable error code and, when the
// failing turn already had one, the session id the client should keep using.
func ChatErrorResponse(code int, errorCode, message, sessionId string) BaseResponse[any] {
	res := ErrorResponse(code, message)
	res.ErrorCode = errorCode
	res.SessionId = sessionId
	return res
}
