package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/kalos-marketplace/internal/bookings"
	"github.com/wolfman30/kalos-marketplace/internal/identity"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// BookingsHandler exposes booking placement, lookup and cancellation.
type BookingsHandler struct {
	service *bookings.Service
	logger  *logging.Logger
}

// NewBookingsHandler creates the bookings handler.
func NewBookingsHandler(service *bookings.Service, logger *logging.Logger) *BookingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingsHandler{service: service, logger: logger}
}

// Routes returns the /v1/bookings subrouter.
func (h *BookingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{bookingID}", h.Get)
	r.Post("/{bookingID}/cancel", h.Cancel)
	return r
}

// Create places a booking for the calling customer.
// POST /v1/bookings
func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookings.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	caller, _ := identity.CallerFromContext(r.Context())
	if req.CustomerID == "" {
		req.CustomerID = caller.Subject
	}
	if req.CustomerID != caller.Subject && !caller.IsAdmin() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: "cannot book for another customer"})
		return
	}

	booking, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// Get returns a booking visible to the caller.
// GET /v1/bookings/{bookingID}
func (h *BookingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// Cancel cancels a booking and frees its slots.
// POST /v1/bookings/{bookingID}/cancel
func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	booking, err := h.service.Cancel(r.Context(), existing.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// load fetches the booking and hides it from callers who are neither party
// to it nor an operator.
func (h *BookingsHandler) load(w http.ResponseWriter, r *http.Request) (*bookings.Booking, bool) {
	booking, err := h.service.Get(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	caller, _ := identity.CallerFromContext(r.Context())
	if !caller.IsAdmin() && caller.Subject != booking.CustomerID && caller.Subject != booking.ProfessionalID {
		writeError(w, r, h.logger, bookings.ErrBookingNotFound)
		return nil, false
	}
	return booking, true
}
