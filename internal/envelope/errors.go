package envelope

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error is the failure envelope. It carries the HTTP status the dispatcher
// reports and travels across the queue boundary as a serialized value.
// A job resolves to exactly one of Result or Error.
type Error struct {
	StatusCode int               `json:"status_code"`
	Message    string            `json:"error"`
	Stack      string            `json:"stack,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NotFound signals that no mapping entry or route entry matched.
func NotFound(format string, args ...any) *Error {
	return coded(http.StatusNotFound, format, args...)
}

// Forbidden signals that a guard predicate rejected the request.
func Forbidden(format string, args ...any) *Error {
	return coded(http.StatusForbidden, format, args...)
}

// BadRequest signals a malformed required header or field.
func BadRequest(format string, args ...any) *Error {
	return coded(http.StatusBadRequest, format, args...)
}

// GatewayTimeout signals that the wait primitive's timer fired.
func GatewayTimeout() *Error {
	return coded(http.StatusGatewayTimeout, "Gateway Timeout")
}

// Internal signals an unexpected failure, a missing dependency, or a broker
// submission failure. Non-retryable: it indicates a wiring bug.
func Internal(format string, args ...any) *Error {
	return coded(http.StatusInternalServerError, format, args...)
}

// Upstream passes a worker-reported failure through with its own status.
func Upstream(statusCode int, message string) *Error {
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	return &Error{StatusCode: statusCode, Message: message}
}

func coded(status int, format string, args ...any) *Error {
	return &Error{StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// AsError coerces any error to a coded Error. Already-coded errors pass
// through unchanged (wrapped ones are unwrapped); everything else becomes
// an internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{StatusCode: http.StatusInternalServerError, Message: err.Error()}
}

// WithStack attaches the current stack trace. Only called outside
// production mode.
func (e *Error) WithStack() *Error {
	e.Stack = string(debug.Stack())
	return e
}
