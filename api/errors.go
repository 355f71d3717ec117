package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/auth"
	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/database"
	"rsi-cycle-tracker/indicator"
	"rsi-cycle-tracker/market"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	MinBars   int    `json:"min_bars,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps an error to its HTTP status and public body.
func statusFor(err error) (int, errorBody) {
	var (
		validation   *apperr.ValidationError
		insufficient *indicator.InsufficientDataError
		notFound     *database.NotFoundError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: "unauthorized"}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Error: err.Error()}
	case errors.Is(err, cycle.ErrReasonRequired):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Field: "reason"}
	case errors.Is(err, cycle.ErrConfirmationMismatch):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Field: "confirmation"}
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorBody{Error: validation.Error(), Field: validation.Field}
	case errors.Is(err, cycle.ErrAlreadyOpen), errors.Is(err, cycle.ErrNotOpen):
		return http.StatusConflict, errorBody{Error: err.Error()}
	case errors.Is(err, cycle.ErrNotEligible):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error()}
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, errorBody{Error: insufficient.Error(), MinBars: insufficient.Required}
	case errors.Is(err, market.ErrUnknownSymbol):
		return http.StatusNotFound, errorBody{Error: err.Error()}
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorBody{Error: notFound.Error()}
	case apperr.IsUpstream(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorBody{Error: "service temporarily unavailable", Retryable: true}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal server error"}
	}
}

// respondError logs the error and sends the mapped JSON response.
// Upstream and internal details are logged, never returned.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := statusFor(err)
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err),
	}
	switch {
	case code >= http.StatusInternalServerError:
		s.log.Error("API Error", fields...)
	case code == http.StatusConflict || code == http.StatusUnprocessableEntity:
		s.log.Info("API request rejected", fields...)
	default:
		s.log.Debug("API request rejected", fields...)
	}
	respondJSON(w, code, body)
}
