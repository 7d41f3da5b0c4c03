package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a booking's lifecycle.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Booking ties a customer to one booked slot. Slot cleanup reads these to
// notify affected customers when a window is invalidated.
type Booking struct {
	ID             uuid.UUID  `json:"id"`
	SlotID         uuid.UUID  `json:"slot_id"`
	AvailabilityID uuid.UUID  `json:"availability_id"`
	CustomerName   string     `json:"customer_name"`
	CustomerEmail  string     `json:"customer_email"`
	CustomerPhone  string     `json:"customer_phone,omitempty"`
	Status         Status     `json:"status"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
