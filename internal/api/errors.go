package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

const (
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeRateLimited  ErrorCode = "rate_limited"
	CodeBadRequest   ErrorCode = "bad_request"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind models.Kind) int {
	switch kind {
	case models.KindInvalidPath, models.KindInvalidArgument:
		return http.StatusBadRequest
	case models.KindFileNotFound, models.KindAppFileNotFound, models.KindProjectNotFound, models.KindAppNotFound:
		return http.StatusNotFound
	case models.KindAlreadyExists:
		return http.StatusConflict
	case models.KindQuotaExceeded:
		return http.StatusPaymentRequired
	case models.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError converts err into a typed response. Errors outside the taxonomy
// are logged and reported without their text.
func writeError(c *gin.Context, err error) {
	d := models.DetailsOf(err)
	if d.Kind == models.KindInternal {
		slog.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
	}
	c.AbortWithStatusJSON(statusFor(d.Kind), ErrorResponse{
		Error:   ErrorDetails{Code: ErrorCode(d.Kind), Message: d.Message},
		Details: d.Details,
	})
}

func writeErrorCode(c *gin.Context, status int, code ErrorCode, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetails{Code: code, Message: message}})
}
