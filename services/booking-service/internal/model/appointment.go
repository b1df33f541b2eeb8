package model

import "time"

type Status string

const (
	StatusPendingDeposit Status = "pending_deposit"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
	StatusCompleted      Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPendingDeposit: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingDeposit, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Active appointments consume slot capacity.
func (s Status) Active() bool {
	return s.Valid() && s != StatusCancelled
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

type Appointment struct {
	ID           string
	SlotID       string
	StylistID    string
	ServiceID    string
	Customer     Customer
	Status       Status
	StartTime    time.Time
	EndTime      time.Time
	Notes        string
	CancelReason string
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
