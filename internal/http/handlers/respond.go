// Package handlers exposes availability, holds, bookings and the admin
// surface over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	"github.com/wolfman30/kalos-marketplace/internal/bookings"
	"github.com/wolfman30/kalos-marketplace/internal/identity"
	"github.com/wolfman30/kalos-marketplace/internal/media"
	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// retryAfterSeconds is advertised on contention responses.
const retryAfterSeconds = "1"

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps a domain error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case availability.IsValidation(err),
		errors.Is(err, bookings.ErrInvalidBooking),
		errors.Is(err, reservation.ErrInvalidHold),
		errors.Is(err, media.ErrInvalidPath),
		errors.Is(err, media.ErrUnsupportedType):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, availability.ErrRecordNotFound),
		errors.Is(err, bookings.ErrBookingNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, reservation.ErrNoSlotAvailable):
		return http.StatusConflict, "slot_unavailable"
	case errors.Is(err, reservation.ErrLockExpired):
		return http.StatusGone, "lock_expired"
	case errors.Is(err, availability.ErrOrphanedBookings):
		return http.StatusConflict, "orphaned_bookings"
	case errors.Is(err, bookings.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, bookings.ErrBookingExists),
		errors.Is(err, availability.ErrRecordExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, reservation.ErrConflict),
		errors.Is(err, availability.ErrConflict):
		return http.StatusServiceUnavailable, "retry"
	case errors.Is(err, media.ErrNotConfigured):
		return http.StatusServiceUnavailable, "media_disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: code, RequestID: identity.RequestIDFromContext(r.Context())}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error("request failed", "error", err, "path", r.URL.Path, "request_id", resp.RequestID)
	} else {
		resp.Message = err.Error()
	}
	if code == "retry" {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:     "invalid_request",
		Message:   msg,
		RequestID: identity.RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
