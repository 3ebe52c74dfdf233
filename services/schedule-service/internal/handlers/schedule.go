package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/carebook/carebook/libs/httpx"
	"github.com/carebook/carebook/services/schedule-service/internal/gate"
	"github.com/carebook/carebook/services/schedule-service/internal/slots"
)

// Scheduler is the engine surface the HTTP layer drives.
type Scheduler interface {
	CreateSchedule(ctx context.Context, req slots.CreateRequest) (slots.Schedule, error)
	Get(ctx context.Context, id string) (slots.Slot, error)
	UpdateStatus(ctx context.Context, id string, status slots.Status) (slots.Slot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, ownerID string) ([]slots.Slot, error)
	FindAvailableProviders(ctx context.Context) ([]slots.ProviderAvailability, error)
}

type ScheduleHandler struct {
	engine Scheduler
	logger *slog.Logger
}

func NewScheduleHandler(engine Scheduler, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{engine: engine, logger: logger}
}

const maxDurationMinutes = int(slots.MaxDuration / time.Minute)

type createScheduleRequest struct {
	Date            string        `json:"date"`
	Morning         *slots.Window `json:"morning"`
	Afternoon       *slots.Window `json:"afternoon"`
	DurationMinutes *int          `json:"duration_minutes"`
}

type createScheduleResponse struct {
	Morning   *[]slots.Interval `json:"morningSchedule,omitempty"`
	Afternoon *[]slots.Interval `json:"afternoonSchedule,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	ID     string       `json:"id"`
	Status slots.Status `json:"status"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := gate.CallerFromContext(r.Context())

	var req createScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cr := slots.CreateRequest{
		OwnerID:   caller.ID,
		Date:      req.Date,
		Morning:   req.Morning,
		Afternoon: req.Afternoon,
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			h.writeError(w, r, slots.InvalidArgument("duration_minutes must be positive"))
			return
		}
		if *req.DurationMinutes > maxDurationMinutes {
			h.writeError(w, r, slots.InvalidArgument("duration_minutes must not exceed %d", maxDurationMinutes))
			return
		}
		cr.Duration = time.Duration(*req.DurationMinutes) * time.Minute
	}

	out, err := h.engine.CreateSchedule(r.Context(), cr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var resp createScheduleResponse
	if req.Morning != nil {
		resp.Morning = nonNil(out.Morning)
	}
	if req.Afternoon != nil {
		resp.Afternoon = nonNil(out.Afternoon)
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func nonNil(in []slots.Interval) *[]slots.Interval {
	if in == nil {
		in = []slots.Interval{}
	}
	return &in
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := gate.CallerFromContext(r.Context())
	list, err := h.engine.List(r.Context(), caller.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *ScheduleHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.authorizeOwner(w, r, id) {
		return
	}
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := slots.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slot, err := h.engine.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updateStatusResponse{ID: slot.ID, Status: slot.Status})
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.authorizeOwner(w, r, id) {
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) AvailableProviders(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.FindAvailableProviders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// authorizeOwner answers 404 for slots the caller does not own so existence is
// not disclosed.
func (h *ScheduleHandler) authorizeOwner(w http.ResponseWriter, r *http.Request, id string) bool {
	caller, _ := gate.CallerFromContext(r.Context())
	slot, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	if slot.OwnerID != caller.ID {
		h.writeError(w, r, slots.NotFound(slots.MsgScheduleNotFound))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
		case errors.Is(err, io.EOF):
			httpx.WriteError(w, http.StatusBadRequest, string(slots.KindInvalidArgument), "request body is required")
		default:
			httpx.WriteError(w, http.StatusBadRequest, string(slots.KindInvalidArgument), "invalid json body")
		}
		return false
	}
	return true
}

func statusFor(kind slots.Kind) int {
	switch kind {
	case slots.KindInvalidInterval, slots.KindInvalidArgument:
		return http.StatusBadRequest
	case slots.KindNotFound:
		return http.StatusNotFound
	case slots.KindConflict:
		return http.StatusConflict
	case slots.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (h *ScheduleHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := slots.AsError(err); ok {
		httpx.AnnotateLog(r.Context(), "error_kind", string(e.Kind))
		httpx.WriteError(w, statusFor(e.Kind), string(e.Kind), e.Message)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		httpx.WriteError(w, http.StatusServiceUnavailable, "timeout", "request timed out")
		return
	}
	h.logger.ErrorContext(r.Context(), "schedule request failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
}
