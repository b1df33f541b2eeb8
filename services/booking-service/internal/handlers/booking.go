package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joycewetu0805/wigvival/libs/httpx"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/reservation"
)

type BookingHandler struct {
	svc    *reservation.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *reservation.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

// Register mounts the public and admin routes. admin guards the /admin routes and writeLimit
// throttles appointment creation; either may be nil.
func (h *BookingHandler) Register(mux *http.ServeMux, admin, writeLimit httpx.Middleware) {
	if admin == nil {
		admin = passthrough
	}
	if writeLimit == nil {
		writeLimit = passthrough
	}

	mux.Handle("POST /appointments", writeLimit(http.HandlerFunc(h.Create)))
	mux.HandleFunc("GET /appointments/{id}", h.Get)
	mux.HandleFunc("POST /appointments/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /availabilities", h.ListAvailable)

	mux.Handle("POST /admin/availabilities", admin(http.HandlerFunc(h.CreateSlot)))
	mux.Handle("POST /admin/availabilities/generate", admin(http.HandlerFunc(h.GenerateSlots)))
	mux.Handle("DELETE /admin/availabilities/{id}", admin(http.HandlerFunc(h.DeleteSlot)))
	mux.Handle("POST /admin/appointments/{id}/confirm", admin(http.HandlerFunc(h.Confirm)))
	mux.Handle("POST /admin/appointments/{id}/complete", admin(http.HandlerFunc(h.Complete)))
}

func passthrough(next http.Handler) http.Handler { return next }

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be a single JSON object")
		return
	}

	appt, err := h.svc.Create(r.Context(), reservation.CreateRequest{
		SlotID:    req.SlotID,
		ServiceID: req.ServiceID,
		Customer: model.Customer{
			ID:    req.Customer.ID,
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Notes: req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/appointments/"+appt.ID)
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelAppointmentRequest
	if err := httpx.DecodeJSON(r, &req, true); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be a JSON object")
		return
	}
	appt, err := h.svc.Cancel(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	slots, err := h.svc.ListAvailable(r.Context(), reservation.AvailabilityQuery{
		Date:      date,
		StylistID: q.Get("stylistId"),
		ServiceID: q.Get("serviceId"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"slots": toSlotResponses(slots),
	})
}

func (h *BookingHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be a single JSON object")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		h.writeServiceError(w, r, &reservation.ValidationError{Field: "startTime", Reason: "must be RFC3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		h.writeServiceError(w, r, &reservation.ValidationError{Field: "endTime", Reason: "must be RFC3339"})
		return
	}

	slot, err := h.svc.CreateSlot(r.Context(), reservation.SlotInput{
		StylistID: req.StylistID,
		ServiceID: req.ServiceID,
		StartTime: start,
		EndTime:   end,
		Capacity:  req.Capacity,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toSlotResponse(slot))
}

func (h *BookingHandler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	var req generateSlotsRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be a single JSON object")
		return
	}
	slots, err := h.svc.GenerateSlots(r.Context(), reservation.GenerateRequest{
		StylistID:       req.StylistID,
		ServiceID:       req.ServiceID,
		Date:            req.Date,
		OpensAt:         req.OpensAt,
		ClosesAt:        req.ClosesAt,
		DurationMinutes: req.DurationMinutes,
		StepMinutes:     req.StepMinutes,
		Capacity:        req.Capacity,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"slots": toSlotResponses(slots)})
}

func (h *BookingHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSlot(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Confirm(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// writeServiceError is the single mapping from the reservation error taxonomy to HTTP.
func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	WriteServiceError(w, r, h.logger, err)
}

func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *reservation.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.Is(err, reservation.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, reservation.ErrSlotFull):
		httpx.WriteError(w, http.StatusConflict, "slot_full", "the slot has no remaining capacity")
	case errors.Is(err, reservation.ErrInvalidState):
		httpx.WriteError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, reservation.ErrSlotInUse):
		httpx.WriteError(w, http.StatusConflict, "slot_in_use", err.Error())
	case errors.Is(err, reservation.ErrBusy):
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusConflict, "busy", "the resource is busy, retry shortly")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
