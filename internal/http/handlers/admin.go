package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	"github.com/wolfman30/kalos-marketplace/internal/media"
	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// AdminHandler serves schedule management, media uploads and manual reaping.
type AdminHandler struct {
	manager *availability.Manager
	engine  *reservation.Engine
	media   *media.Store
	logger  *logging.Logger
	now     func() time.Time
}

// NewAdminHandler creates the admin handler. media may be nil when uploads are disabled.
func NewAdminHandler(manager *availability.Manager, engine *reservation.Engine, store *media.Store, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{manager: manager, engine: engine, media: store, logger: logger, now: time.Now}
}

// Routes returns the /admin subrouter.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/professionals/{professionalID}", func(pro chi.Router) {
		pro.Post("/availability/generate", h.Generate)
		pro.Put("/base-schedule", h.UpdateBaseSchedule)
		pro.Post("/availability/{date}/exceptions", h.AddException)
		pro.Delete("/availability/{date}/exceptions/{index}", h.RemoveException)
		pro.Put("/media/{name}", h.PutMedia)
	})
	r.Post("/locks/reap", h.ReapLocks)
	return r
}

// GenerateRequest names the dates to create, either listed or as a range.
type GenerateRequest struct {
	Dates        []string              `json:"dates,omitempty"`
	StartDate    string                `json:"startDate,omitempty"`
	EndDate      string                `json:"endDate,omitempty"`
	BaseSchedule schedule.BaseSchedule `json:"baseSchedule"`
}

// Generate creates records for dates that have none yet.
// POST /admin/professionals/{professionalID}/availability/generate
func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	dates := req.Dates
	if len(dates) == 0 {
		if req.StartDate == "" || req.EndDate == "" {
			badRequest(w, r, "dates or startDate and endDate required")
			return
		}
		var err error
		dates, err = availability.DateRange(req.StartDate, req.EndDate)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	result, err := h.manager.GenerateAvailability(r.Context(), chi.URLParam(r, "professionalID"), dates, req.BaseSchedule)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type orphanedResponse struct {
	errorResponse
	Orphaned []availability.Orphan `json:"orphaned"`
}

// UpdateBaseSchedule regenerates future records. ?force=true applies the
// change even when confirmed bookings would lose their slots.
// PUT /admin/professionals/{professionalID}/base-schedule
func (h *AdminHandler) UpdateBaseSchedule(w http.ResponseWriter, r *http.Request) {
	var base schedule.BaseSchedule
	if err := decodeJSON(w, r, &base); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	result, err := h.manager.UpdateBaseSchedule(r.Context(), chi.URLParam(r, "professionalID"), base, availability.UpdateOptions{Force: force})
	if errors.Is(err, availability.ErrOrphanedBookings) && result != nil {
		writeJSON(w, http.StatusConflict, orphanedResponse{
			errorResponse: errorResponse{Error: "orphaned_bookings", Message: "pass force=true to apply anyway"},
			Orphaned:      result.Orphaned,
		})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AddException appends a closure to one date.
// POST /admin/professionals/{professionalID}/availability/{date}/exceptions
func (h *AdminHandler) AddException(w http.ResponseWriter, r *http.Request) {
	var exc availability.Exception
	if err := decodeJSON(w, r, &exc); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	rec, err := h.manager.AddException(r.Context(), chi.URLParam(r, "professionalID"), chi.URLParam(r, "date"), exc)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RemoveException drops the exception at {index}.
// DELETE /admin/professionals/{professionalID}/availability/{date}/exceptions/{index}
func (h *AdminHandler) RemoveException(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, r, "index must be an integer")
		return
	}
	rec, err := h.manager.RemoveException(r.Context(), chi.URLParam(r, "professionalID"), chi.URLParam(r, "date"), index)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type mediaResponse struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

// PutMedia stores the raw request body as portfolio media.
// PUT /admin/professionals/{professionalID}/media/{name}
func (h *AdminHandler) PutMedia(w http.ResponseWriter, r *http.Request) {
	if !h.media.Enabled() {
		writeError(w, r, h.logger, media.ErrNotConfigured)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, media.MaxObjectBytes+1))
	if err != nil {
		badRequest(w, r, "failed to read body")
		return
	}
	objectPath := chi.URLParam(r, "professionalID") + "/" + chi.URLParam(r, "name")
	ref, err := h.media.Put(r.Context(), objectPath, r.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, mediaResponse{Ref: ref, URL: h.media.URL(ref)})
}

// ReapLocks runs one reaper pass immediately.
// POST /admin/locks/reap
func (h *AdminHandler) ReapLocks(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.ReapExpiredLocks(r.Context(), h.now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
