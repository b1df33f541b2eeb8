package handlers

import (
	"time"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
)

type customerJSON struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type createAppointmentRequest struct {
	SlotID    string       `json:"slotId"`
	ServiceID string       `json:"serviceId"`
	Customer  customerJSON `json:"customer"`
	Notes     string       `json:"notes,omitempty"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type appointmentResponse struct {
	AppointmentID string       `json:"appointmentId"`
	Status        string       `json:"status"`
	SlotID        string       `json:"slotId,omitempty"`
	StylistID     string       `json:"stylistId"`
	ServiceID     string       `json:"serviceId"`
	Customer      customerJSON `json:"customer"`
	StartTime     string       `json:"startTime"`
	EndTime       string       `json:"endTime"`
	Notes         string       `json:"notes,omitempty"`
	CancelReason  string       `json:"cancelReason,omitempty"`
	CancelledAt   string       `json:"cancelledAt,omitempty"`
	CreatedAt     string       `json:"createdAt"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: a.ID,
		Status:        string(a.Status),
		SlotID:        a.SlotID,
		StylistID:     a.StylistID,
		ServiceID:     a.ServiceID,
		Customer: customerJSON{
			ID:    a.Customer.ID,
			Name:  a.Customer.Name,
			Email: a.Customer.Email,
			Phone: a.Customer.Phone,
		},
		StartTime:    a.StartTime.UTC().Format(time.RFC3339),
		EndTime:      a.EndTime.UTC().Format(time.RFC3339),
		Notes:        a.Notes,
		CancelReason: a.CancelReason,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type slotResponse struct {
	SlotID    string `json:"slotId"`
	StylistID string `json:"stylistId"`
	ServiceID string `json:"serviceId,omitempty"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked"`
	Remaining int    `json:"remaining"`
}

func toSlotResponse(s model.Slot) slotResponse {
	return slotResponse{
		SlotID:    s.ID,
		StylistID: s.StylistID,
		ServiceID: s.ServiceID,
		StartTime: s.StartTime.UTC().Format(time.RFC3339),
		EndTime:   s.EndTime.UTC().Format(time.RFC3339),
		Capacity:  s.Capacity,
		Booked:    s.Booked,
		Remaining: s.Remaining(),
	}
}

func toSlotResponses(slots []model.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

type createSlotRequest struct {
	StylistID string `json:"stylistId"`
	ServiceID string `json:"serviceId,omitempty"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Capacity  int    `json:"capacity"`
}

type generateSlotsRequest struct {
	StylistID       string `json:"stylistId"`
	ServiceID       string `json:"serviceId,omitempty"`
	Date            string `json:"date"`
	OpensAt         string `json:"opensAt"`
	ClosesAt        string `json:"closesAt"`
	DurationMinutes int    `json:"durationMinutes"`
	StepMinutes     int    `json:"stepMinutes,omitempty"`
	Capacity        int    `json:"capacity"`
}
