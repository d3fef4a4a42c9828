package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// AvailabilityHandler serves the public availability reads and slot holds.
type AvailabilityHandler struct {
	manager *availability.Manager
	query   *availability.Query
	engine  *reservation.Engine
	logger  *logging.Logger
}

// NewAvailabilityHandler creates the availability handler.
func NewAvailabilityHandler(manager *availability.Manager, query *availability.Query, engine *reservation.Engine, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{manager: manager, query: query, engine: engine, logger: logger}
}

type rangeResponse struct {
	ProfessionalID string                 `json:"professionalId"`
	StartDate      string                 `json:"startDate"`
	EndDate        string                 `json:"endDate"`
	Records        []*availability.Record `json:"records"`
}

// GetRange returns every stored record between start and end inclusive.
// GET /v1/professionals/{professionalID}/availability?start=&end=
func (h *AvailabilityHandler) GetRange(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		badRequest(w, r, "start and end query parameters required")
		return
	}
	records, err := h.manager.GetRange(r.Context(), professionalID, start, end)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse{
		ProfessionalID: professionalID,
		StartDate:      start,
		EndDate:        end,
		Records:        records,
	})
}

// GetByDate returns one day's record.
// GET /v1/professionals/{professionalID}/availability/{date}
func (h *AvailabilityHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	date := chi.URLParam(r, "date")
	rec, err := h.manager.GetByDate(r.Context(), professionalID, date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rec == nil {
		writeError(w, r, h.logger, availability.ErrRecordNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type slotsResponse struct {
	ProfessionalID  string                 `json:"professionalId"`
	Date            string                 `json:"date"`
	DurationMinutes int                    `json:"durationMinutes"`
	Slots           []availability.Opening `json:"slots"`
}

// GetSlots lists the start times at which a service of ?duration minutes fits.
// GET /v1/professionals/{professionalID}/availability/{date}/slots?duration=
func (h *AvailabilityHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	date := chi.URLParam(r, "date")
	duration, err := strconv.Atoi(r.URL.Query().Get("duration"))
	if err != nil {
		badRequest(w, r, "duration must be an integer number of minutes")
		return
	}
	openings, err := h.query.GetAvailableSlots(r.Context(), professionalID, date, duration)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		ProfessionalID:  professionalID,
		Date:            date,
		DurationMinutes: duration,
		Slots:           openings,
	})
}

type holdRequest struct {
	DurationMinutes int `json:"durationMinutes"`
}

type holdResponse struct {
	Hold       *reservation.Hold `json:"hold"`
	TTLSeconds int               `json:"ttlSeconds"`
}

// CreateHold locks the earliest opening that fits the requested duration.
// POST /v1/professionals/{professionalID}/availability/{date}/holds
func (h *AvailabilityHandler) CreateHold(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	date := chi.URLParam(r, "date")
	var req holdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	hold, err := h.engine.FindAndLock(r.Context(), professionalID, date, req.DurationMinutes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, holdResponse{
		Hold:       hold,
		TTLSeconds: int(h.engine.LockTTL() / time.Second),
	})
}

// ReleaseHold gives a hold's slots back. Releasing twice is harmless.
// POST /v1/holds/release
func (h *AvailabilityHandler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	var hold reservation.Hold
	if err := decodeJSON(w, r, &hold); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	if err := h.engine.Release(r.Context(), &hold); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
