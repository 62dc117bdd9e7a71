package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authgateway/internal/common"
)

// APIError is the body of every error response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// toHTTP maps service errors to a status and a safe message. Unknown errors
// become 500 without details.
func toHTTP(err error) (int, APIError) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, APIError{Code: "invalid_argument", Message: "invalid argument"}
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, APIError{Code: "unauthenticated", Message: "not authenticated"}
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: "not found"}
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, APIError{Code: "already_exists", Message: "already exists"}
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, APIError{Code: "rate_limited", Message: "too many attempts"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, APIError{Code: "deadline_exceeded", Message: "deadline exceeded"}
	default:
		return http.StatusInternalServerError, APIError{Code: "internal", Message: "internal error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := toHTTP(err)
	apiErr.RequestID = requestIDFrom(r.Context())
	writeJSON(w, status, ErrorResponse{Error: apiErr})
}
