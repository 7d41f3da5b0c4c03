package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carelane/scheduling-platform/internal/availability"
	"github.com/carelane/scheduling-platform/internal/recurrence"
	"github.com/carelane/scheduling-platform/internal/scheduler"
	"github.com/carelane/scheduling-platform/internal/scheduling"
	"github.com/carelane/scheduling-platform/internal/slots"
	"github.com/carelane/scheduling-platform/pkg/logging"
)

// AvailabilityService is the orchestration surface the HTTP layer consumes.
type AvailabilityService interface {
	Create(ctx context.Context, in scheduler.CreateInput) (*scheduler.CreateResult, error)
	Update(ctx context.Context, id uuid.UUID, in scheduler.UpdateInput) (*scheduler.UpdateResult, error)
	Accept(ctx context.Context, id uuid.UUID) (*slots.RegenerationResult, error)
	Reject(ctx context.Context, id uuid.UUID) (*slots.CleanupResult, error)
	Cancel(ctx context.Context, id uuid.UUID) (*slots.CleanupResult, error)
	CancelSeries(ctx context.Context, seriesID uuid.UUID, scope slots.SeriesScope) (*slots.CleanupResult, error)
	Delete(ctx context.Context, id uuid.UUID) (*slots.CleanupResult, error)
	Get(ctx context.Context, id uuid.UUID) (*availability.Window, error)
	List(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Window, error)
	Constraints() availability.Constraints
}

// AvailabilityHandler exposes availability management over HTTP.
type AvailabilityHandler struct {
	svc    AvailabilityService
	logger *logging.Logger
}

// NewAvailabilityHandler creates a new availability handler.
func NewAvailabilityHandler(svc AvailabilityService, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{svc: svc, logger: logger}
}

// RegisterAvailabilityRoutes registers the availability API.
func RegisterAvailabilityRoutes(r chi.Router, svc AvailabilityService, logger *logging.Logger) {
	h := NewAvailabilityHandler(svc, logger)

	r.Get("/constraints", h.GetConstraints)
	r.Get("/availability", h.ListAvailability)
	r.Post("/availability", h.CreateAvailability)
	r.Route("/availability/{availabilityID}", func(r chi.Router) {
		r.Get("/", h.GetAvailability)
		r.Put("/", h.UpdateAvailability)
		r.Delete("/", h.DeleteAvailability)
		r.Post("/accept", h.AcceptAvailability)
		r.Post("/reject", h.RejectAvailability)
		r.Post("/cancel", h.CancelAvailability)
	})
	r.Delete("/series/{seriesID}", h.CancelSeries)
}

type recurrenceRequest struct {
	Weekdays []int     `json:"weekdays"`
	Until    time.Time `json:"until"`
}

// CreateAvailabilityRequest is the request body for creating availability.
type CreateAvailabilityRequest struct {
	ProviderID         string                       `json:"provider_id"`
	OrgID              string                       `json:"org_id,omitempty"`
	LocationID         string                       `json:"location_id,omitempty"`
	StartTime          time.Time                    `json:"start_time"`
	EndTime            time.Time                    `json:"end_time"`
	SchedulingRule     string                       `json:"scheduling_rule"`
	SchedulingInterval int                          `json:"scheduling_interval,omitempty"`
	Services           []scheduling.ServiceOffering `json:"services"`
	Recurrence         *recurrenceRequest           `json:"recurrence,omitempty"`
	BillingEntity      string                       `json:"billing_entity,omitempty"`
	CreatedByProvider  bool                         `json:"created_by_provider,omitempty"`
}

// CreateAvailability creates a window or a recurring series.
// POST /api/v1/availability
func (h *AvailabilityHandler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	var req CreateAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		jsonError(w, "provider_id must be a valid UUID", http.StatusBadRequest)
		return
	}
	rule := scheduling.Rule(req.SchedulingRule)
	if !rule.Valid() {
		jsonError(w, "scheduling_rule must be one of CONTINUOUS, ON_THE_HOUR, ON_THE_HALF_HOUR", http.StatusBadRequest)
		return
	}
	if len(req.Services) == 0 {
		jsonError(w, "at least one service is required", http.StatusBadRequest)
		return
	}

	in := scheduler.CreateInput{
		ProviderID:      providerID,
		Start:           req.StartTime,
		End:             req.EndTime,
		Rule:            rule,
		IntervalMinutes: req.SchedulingInterval,
		Services:        req.Services,
		BillingEntity:   req.BillingEntity,
		CreatedBySelf:   req.CreatedByProvider,
	}
	if in.OrgID, err = parseOptionalUUID(req.OrgID); err != nil {
		jsonError(w, "org_id must be a valid UUID", http.StatusBadRequest)
		return
	}
	if in.LocationID, err = parseOptionalUUID(req.LocationID); err != nil {
		jsonError(w, "location_id must be a valid UUID", http.StatusBadRequest)
		return
	}
	if req.Recurrence != nil {
		pattern := &recurrence.Pattern{Until: req.Recurrence.Until}
		for _, d := range req.Recurrence.Weekdays {
			if d < 0 || d > 6 {
				jsonError(w, "recurrence weekdays must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
				return
			}
			pattern.Weekdays = append(pattern.Weekdays, time.Weekday(d))
		}
		in.Recurrence = pattern
	}

	result, err := h.svc.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, scheduler.ErrConcurrentChange) {
			jsonError(w, "another availability change is in progress for this provider, retry shortly", http.StatusConflict)
			return
		}
		h.logger.Error("create availability failed", "provider_id", providerID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !result.Validation.IsValid {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// UpdateAvailabilityRequest is the request body for rescheduling a window.
type UpdateAvailabilityRequest struct {
	StartTime          time.Time                    `json:"start_time"`
	EndTime            time.Time                    `json:"end_time"`
	SchedulingRule     string                       `json:"scheduling_rule"`
	SchedulingInterval int                          `json:"scheduling_interval,omitempty"`
	Services           []scheduling.ServiceOffering `json:"services,omitempty"`
	BillingEntity      string                       `json:"billing_entity,omitempty"`
}

// UpdateAvailability reschedules a window.
// PUT /api/v1/availability/{availabilityID}
func (h *AvailabilityHandler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "availabilityID")
	if !ok {
		return
	}

	var req UpdateAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	rule := scheduling.Rule(req.SchedulingRule)
	if !rule.Valid() {
		jsonError(w, "scheduling_rule must be one of CONTINUOUS, ON_THE_HOUR, ON_THE_HALF_HOUR", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Update(r.Context(), id, scheduler.UpdateInput{
		Start:           req.StartTime,
		End:             req.EndTime,
		Rule:            rule,
		IntervalMinutes: req.SchedulingInterval,
		Services:        req.Services,
		BillingEntity:   req.BillingEntity,
	})
	if err != nil {
		h.respondServiceError(w, "update availability failed", id, err)
		return
	}
	if !result.Validation.IsValid {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAvailability returns one window.
// GET /api/v1/availability/{availabilityID}
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "availabilityID")
	if !ok {
		return
	}

	window, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get availability failed", id, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

// ListAvailability returns a provider's windows in a date range.
// GET /api/v1/availability?provider_id=...&from=...&to=...
func (h *AvailabilityHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
	if err != nil {
		jsonError(w, "provider_id query parameter must be a valid UUID", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	from, to := now, now.AddDate(0, 3, 0)
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			jsonError(w, "from must be RFC 3339", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			jsonError(w, "to must be RFC 3339", http.StatusBadRequest)
			return
		}
	}

	windows, err := h.svc.List(r.Context(), providerID, from, to)
	if err != nil {
		h.logger.Error("list availability failed", "provider_id", providerID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"windows": windows,
		"count":   len(windows),
	})
}

// AcceptAvailability approves a pending window and generates its slots.
// POST /api/v1/availability/{availabilityID}/accept
func (h *AvailabilityHandler) AcceptAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "availabilityID")
	if !ok {
		return
	}

	result, err := h.svc.Accept(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "accept availability failed", id, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RejectAvailability declines a pending window.
// POST /api/v1/availability/{availabilityID}/reject
func (h *AvailabilityHandler) RejectAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "availabilityID")
	if !ok {
		return
	}

	result, err := h.svc.Reject(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "reject availability failed", id, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelAvailability cancels a window and disposes of its slots.
// POST /api/v1/availability/{availabilityID}/cancel
func (h *AvailabilityHandler) CancelAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "availabilityID")
	if !ok {
		return
	}

	result, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "cancel availability failed", id, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteAvailability removes a window after slot disposition.
// DELETE /api/v1/availability/{availabilityID}
func (h *AvailabilityHandler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "availabilityID")
	if !ok {
		return
	}

	result, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "delete availability failed", id, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelSeries disposes of a recurring series.
// DELETE /api/v1/series/{seriesID}?scope=future_only
func (h *AvailabilityHandler) CancelSeries(w http.ResponseWriter, r *http.Request) {
	seriesID, err := uuid.Parse(chi.URLParam(r, "seriesID"))
	if err != nil {
		jsonError(w, "seriesID must be a valid UUID", http.StatusBadRequest)
		return
	}
	scope := slots.SeriesScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = slots.ScopeAll
	}
	if !scope.Valid() {
		jsonError(w, "scope must be one of all, future_only, cancelled_only", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CancelSeries(r.Context(), seriesID, scope)
	if err != nil {
		h.logger.Error("cancel series failed", "series_id", seriesID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetConstraints returns the fixed validation policy for display.
// GET /api/v1/constraints
func (h *AvailabilityHandler) GetConstraints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Constraints())
}

func (h *AvailabilityHandler) respondServiceError(w http.ResponseWriter, msg string, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, availability.ErrNotFound):
		jsonError(w, "availability not found", http.StatusNotFound)
	case errors.Is(err, scheduler.ErrConcurrentChange):
		jsonError(w, "another availability change is in progress for this provider, retry shortly", http.StatusConflict)
	default:
		h.logger.Error(msg, "availability_id", id, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		jsonError(w, param+" must be a valid UUID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(v string) (*uuid.UUID, error) {
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
