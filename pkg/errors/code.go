package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Evaluation lifecycle errors
// 15000-15999: Queue & Broker errors
// 16000-16999: Storage backend errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Evaluation Lifecycle Errors (13000-13999) ==========

	EvaluationNotFound   ErrorCode = 13000
	InvalidTransition    ErrorCode = 13001
	UnknownStatus        ErrorCode = 13002
	EvaluationNotRunning ErrorCode = 13003

	// ========== Queue & Broker Errors (15000-15999) ==========

	TaskNotFound   ErrorCode = 15000
	DispatchFailed ErrorCode = 15001
	BrokerError    ErrorCode = 15002
	RevokeFailed   ErrorCode = 15003
	QueueFull      ErrorCode = 15004

	// ========== Storage Backend Errors (16000-16999) ==========

	StorageError   ErrorCode = 16000
	LogWriteFailed ErrorCode = 16001
)

var codeMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests",
	ServiceUnavailable:  "Service unavailable",
	Timeout:             "Operation timed out",

	CacheError: "Cache operation failed",

	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	EvaluationNotFound:   "Evaluation not found",
	InvalidTransition:    "Invalid status transition",
	UnknownStatus:        "Unknown status",
	EvaluationNotRunning: "Evaluation is not running",

	TaskNotFound:   "Task not found",
	DispatchFailed: "Failed to dispatch evaluation",
	BrokerError:    "Broker operation failed",
	RevokeFailed:   "Failed to revoke task",
	QueueFull:      "Queue is full",

	StorageError:   "Storage operation failed",
	LogWriteFailed: "Failed to write logs",
}

var codeHTTPStatus = map[ErrorCode]int{
	Success:             http.StatusOK,
	InternalServerError: http.StatusInternalServerError,
	InvalidParams:       http.StatusBadRequest,
	NotFound:            http.StatusNotFound,
	TooManyRequests:     http.StatusTooManyRequests,
	ServiceUnavailable:  http.StatusServiceUnavailable,
	Timeout:             http.StatusGatewayTimeout,

	CacheError: http.StatusInternalServerError,

	ValidationFailed:   http.StatusBadRequest,
	RequiredFieldEmpty: http.StatusBadRequest,

	EvaluationNotFound:   http.StatusNotFound,
	InvalidTransition:    http.StatusConflict,
	UnknownStatus:        http.StatusBadRequest,
	EvaluationNotRunning: http.StatusConflict,

	TaskNotFound:   http.StatusNotFound,
	DispatchFailed: http.StatusServiceUnavailable,
	BrokerError:    http.StatusBadGateway,
	RevokeFailed:   http.StatusBadGateway,
	QueueFull:      http.StatusServiceUnavailable,

	StorageError:   http.StatusBadGateway,
	LogWriteFailed: http.StatusBadGateway,
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	if status, ok := codeHTTPStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}
