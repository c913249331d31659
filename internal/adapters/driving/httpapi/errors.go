package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error to an HTTP status and a stable code.
// Order matters: the first matching sentinel wins.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrParse), errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusUnprocessableEntity, "PARSE_ERROR"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrDocumentBusy), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrIndexUnavailable),
		errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrLLMUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, domain.ErrEmbeddingBackend),
		errors.Is(err, domain.ErrGeneration),
		errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway, "BACKEND_ERROR"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError aborts the request with the mapped status.
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	info := errorInfo{
		Code:      code,
		Message:   err.Error(),
		Retryable: domain.IsRetryable(err),
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		info.Fields = verr.Fields
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: info})
}

// badRequest reports a malformed request before it reaches a service.
func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: errorInfo{
		Code:    "INVALID_INPUT",
		Message: message,
	}})
}
