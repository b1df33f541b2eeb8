package model

import "time"

// Slot is a stylist's bounded-capacity time window. Booked counts the active appointments bound
// to it and stays within [0, Capacity].
type Slot struct {
	ID        string
	StylistID string
	ServiceID string // empty accepts any service
	StartTime time.Time
	EndTime   time.Time
	Capacity  int
	Booked    int
	CreatedAt time.Time
}

func (s Slot) Remaining() int {
	if r := s.Capacity - s.Booked; r > 0 {
		return r
	}
	return 0
}

func (s Slot) Full() bool {
	return s.Booked >= s.Capacity
}

func (s Slot) Accepts(serviceID string) bool {
	return s.ServiceID == "" || s.ServiceID == serviceID
}
