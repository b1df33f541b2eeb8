package reservation

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
)

const (
	maxNameLen  = 200
	maxNotesLen = 1000
	maxReason   = 500
)

type CreateRequest struct {
	SlotID    string
	ServiceID string
	Customer  model.Customer
	Notes     string
}

func (r CreateRequest) normalized() CreateRequest {
	r.SlotID = strings.TrimSpace(r.SlotID)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.Customer.ID = strings.TrimSpace(r.Customer.ID)
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.Customer.Email = strings.ToLower(strings.TrimSpace(r.Customer.Email))
	r.Customer.Phone = strings.TrimSpace(r.Customer.Phone)
	r.Notes = strings.TrimSpace(r.Notes)
	return r
}

// Validate checks shape only. Whether the slot exists or has room is decided under the lock.
func (r CreateRequest) Validate() error {
	if err := requireUUID("slotId", r.SlotID); err != nil {
		return err
	}
	if err := requireUUID("serviceId", r.ServiceID); err != nil {
		return err
	}
	c := r.Customer
	if c.Name == "" {
		return invalid("customer.name", "is required")
	}
	if utf8.RuneCountInString(c.Name) > maxNameLen {
		return invalid("customer.name", "is too long")
	}
	if c.ID == "" && c.Email == "" && c.Phone == "" {
		return invalid("customer", "one of id, email or phone is required")
	}
	if c.Email != "" {
		if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
			return invalid("customer.email", "is not a valid address")
		}
	}
	if c.Phone != "" && !validPhone(c.Phone) {
		return invalid("customer.phone", "is not a valid phone number")
	}
	if utf8.RuneCountInString(r.Notes) > maxNotesLen {
		return invalid("notes", "is too long")
	}
	return nil
}

func requireUUID(field, v string) error {
	if v == "" {
		return invalid(field, "is required")
	}
	if _, err := uuid.Parse(v); err != nil {
		return invalid(field, "must be a uuid")
	}
	return nil
}

func optionalUUID(field, v string) error {
	if v == "" {
		return nil
	}
	return requireUUID(field, v)
}

// validPhone accepts an optional leading + followed by 6 to 20 digits, allowing spaces, dots,
// dashes and parentheses as separators.
func validPhone(p string) bool {
	digits := 0
	for i, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 6 && digits <= 20
}

// SlotInput describes one slot created by an administrator.
type SlotInput struct {
	StylistID string
	ServiceID string
	StartTime time.Time
	EndTime   time.Time
	Capacity  int
}

const maxCapacity = 50

func (in SlotInput) Validate() error {
	if err := requireUUID("stylistId", in.StylistID); err != nil {
		return err
	}
	if err := optionalUUID("serviceId", in.ServiceID); err != nil {
		return err
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return invalid("startTime", "start and end are required")
	}
	if !in.StartTime.Before(in.EndTime) {
		return invalid("endTime", "must be after startTime")
	}
	if in.Capacity < 1 || in.Capacity > maxCapacity {
		return invalid("capacity", "must be between 1 and 50")
	}
	return nil
}

// GenerateRequest lays out back-to-back slots for one stylist over a working window of a day.
type GenerateRequest struct {
	StylistID       string
	ServiceID       string
	Date            string // YYYY-MM-DD in the salon's location
	OpensAt         string // HH:MM
	ClosesAt        string // HH:MM
	DurationMinutes int
	StepMinutes     int // defaults to DurationMinutes
	Capacity        int
}

// AvailabilityQuery lists open slots of a day.
type AvailabilityQuery struct {
	Date      string
	StylistID string
	ServiceID string
}

const dateLayout = "2006-01-02"

func parseDay(field, v string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, invalid(field, "is required")
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(v), loc)
	if err != nil {
		return time.Time{}, invalid(field, "must be YYYY-MM-DD")
	}
	return day, nil
}

type clock struct {
	hour, minute int
}

func (c clock) minutes() int { return c.hour*60 + c.minute }

// on places the wall-clock time on day's calendar date in loc.
func (c clock) on(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, loc)
}

func parseClock(field, v string) (clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return clock{}, invalid(field, "must be HH:MM")
	}
	return clock{hour: t.Hour(), minute: t.Minute()}, nil
}
