package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	guestorderdomain "github.com/smallbiznis/reconcile/internal/guestorder/domain"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrMethodNotAllowed   = errors.New("method_not_allowed")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceID),
		errors.Is(err, guestorderdomain.ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "invalid request"}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, guestorderdomain.ErrUnauthenticated):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.Is(err, ErrConflict),
		errors.Is(err, invoicedomain.ErrInvoiceAlreadyPaid):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: conflictMessage(err)}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, errorPayload{Type: "method_not_allowed", Message: "method not allowed"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, invoicedomain.ErrInvoiceAlreadyPaid) {
		return "invoice is already paid"
	}
	return "conflict"
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, guestorderdomain.ErrOrderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns the error type and code written to access logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, err.Error()
}
