package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	enrichmentDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
)

// APIError represents an API error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common API errors
var (
	ErrBadRequest = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "bad_request",
		Message: "Invalid request",
	}
	ErrInternalServer = &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "Internal server error",
	}
)

// errorResponse is the body of every non-2xx response. Result carries the
// partial outcome when one exists, such as an enrichment whose charge was
// not recorded.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

// classify maps service errors to API errors. Unknown errors are internal
// and their message is not exposed.
func classify(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, billingDomain.ErrUnknownAction),
		errors.Is(err, billingDomain.ErrUnknownFeature),
		errors.Is(err, billingDomain.ErrUnknownTier),
		errors.Is(err, billingDomain.ErrInvalidCount),
		errors.Is(err, billingDomain.ErrInvalidCredits),
		errors.Is(err, enrichmentDomain.ErrInvalidLead):
		return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, billingDomain.ErrChargeNotRecorded):
		return &APIError{Status: http.StatusBadGateway, Code: "charge_not_recorded", Message: err.Error()}
	case errors.Is(err, enrichmentDomain.ErrNoProviders),
		errors.Is(err, enrichmentDomain.ErrMissingCredentials):
		return &APIError{Status: http.StatusInternalServerError, Code: "misconfigured", Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: http.StatusServiceUnavailable, Code: "canceled", Message: err.Error()}
	default:
		return ErrInternalServer
	}
}

// writeError writes a JSON error response for err.
func writeError(w http.ResponseWriter, err error, result any) {
	apiErr := classify(err)
	writeJSON(w, apiErr.Status, errorResponse{
		Error:   http.StatusText(apiErr.Status),
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Result:  result,
	})
}

func badRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: ErrBadRequest.Code, Message: message}
}
