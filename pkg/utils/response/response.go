package response

import (
	"net/http"

	"evalhub/pkg/errors"
	"evalhub/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response represents a standard API response
type Response struct {
	Code    errors.ErrorCode `json:"code"`                // Error code
	Message string           `json:"message"`             // Error message
	Data    interface{}      `json:"data,omitempty"`      // Response data (omit if nil)
	Details interface{}      `json:"details,omitempty"`   // Additional details (omit if nil)
	TraceID string           `json:"trace_id,omitempty"`  // Request trace ID
}

// Success sends a successful response with data
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.Success,
		Message: "Success",
		Data:    data,
		TraceID: getTraceID(c),
	})
}

// Error sends an error response
// It automatically extracts error code and message from the error
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)

	logger.Error(c.Request.Context(), "request error",
		zap.Int("code", int(customErr.Code)),
		zap.String("message", customErr.Error()),
	)

	c.JSON(customErr.Code.HTTPStatus(), Response{
		Code:    customErr.Code,
		Message: customErr.Error(),
		Details: customErr.Details,
		TraceID: getTraceID(c),
	})
}

// BadRequest sends a bad request response with message
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    errors.InvalidParams,
		Message: message,
		TraceID: getTraceID(c),
	})
}

func getTraceID(c *gin.Context) string {
	return c.GetString("trace_id")
}
