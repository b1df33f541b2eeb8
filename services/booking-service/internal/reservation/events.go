package reservation

import (
	"encoding/json"
	"time"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/outbox"
)

const (
	EventBooked    = "booking.appointment.booked.v1"
	EventCancelled = "booking.appointment.cancelled.v1"
	EventConfirmed = "booking.appointment.confirmed.v1"
	EventCompleted = "booking.appointment.completed.v1"
	EventExpired   = "booking.appointment.expired.v1"
)

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	SlotID        string `json:"slot_id"`
	StylistID     string `json:"stylist_id"`
	ServiceID     string `json:"service_id"`
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	Status        string `json:"status"`
	PreviousState string `json:"previous_status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	OccurredAt    string `json:"occurred_at"`
}

func newEvent(eventType string, a model.Appointment, from model.Status, reason string) outbox.Event {
	// Marshalling a flat struct of strings cannot fail.
	payload, _ := json.Marshal(appointmentEvent{
		AppointmentID: a.ID,
		SlotID:        a.SlotID,
		StylistID:     a.StylistID,
		ServiceID:     a.ServiceID,
		CustomerID:    a.Customer.ID,
		CustomerEmail: a.Customer.Email,
		CustomerPhone: a.Customer.Phone,
		Status:        string(a.Status),
		PreviousState: string(from),
		Reason:        reason,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		OccurredAt:    a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
