package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/bidhaus/auction-backend/internal/domain/errors"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Fields    map[string][]string `json:"fields,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

// writeError maps an error to its HTTP response. Domain errors carry their
// own status and code; everything else is an internal error.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	detail := errorDetail{
		Code:      "INTERNAL_ERROR",
		Message:   "An internal error occurred",
		RequestID: requestIDFromContext(r.Context()),
	}

	var appErr *apperrors.AppError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &appErr):
		status = appErr.StatusCode
		detail.Code = appErr.Code
		detail.Message = appErr.Message
		if appErr.Retryable {
			w.Header().Set("Retry-After", "1")
		}
	case errors.As(err, &validationErrs):
		status = http.StatusBadRequest
		detail.Code = "VALIDATION_FAILED"
		detail.Message = "Request validation failed"
		detail.Fields = make(map[string][]string, len(validationErrs))
		for _, fe := range validationErrs {
			field := strings.ToLower(fe.Field())
			detail.Fields[field] = append(detail.Fields[field], validationMessage(fe))
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		detail.Code = "REQUEST_TIMEOUT"
		detail.Message = "Request timed out"
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
		detail.Code = "REQUEST_CANCELED"
		detail.Message = "Request was canceled"
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: detail})
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "gtfield":
		return "must be after " + strings.ToLower(fe.Param())
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "iso4217":
		return "must be a valid currency code"
	default:
		return "is invalid"
	}
}
