package httpapi

import (
	"errors"
	"net/http"

	"github.com/nexusrag/core/internal/coreerrors"
)

// statusFor maps the core's closed error-kind taxonomy to an HTTP status
// code.
func statusFor(err error) int {
	var ce *coreerrors.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}

	switch ce.Kind {
	case coreerrors.InvalidRequest:
		return http.StatusBadRequest
	case coreerrors.NotFound:
		return http.StatusNotFound
	case coreerrors.RateLimited:
		return http.StatusTooManyRequests
	case coreerrors.QueueFull, coreerrors.QueueCleared:
		return http.StatusServiceUnavailable
	case coreerrors.BackendUnavailable, coreerrors.LLMUnavailable:
		return http.StatusBadGateway
	case coreerrors.BackendRejected:
		return http.StatusBadRequest
	case coreerrors.LLMStreamError, coreerrors.ProtocolError:
		return http.StatusInternalServerError
	case coreerrors.IndexPartialFailure:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
