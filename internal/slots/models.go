package slots

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a slot's lifecycle. AVAILABLE slots may be booked; BLOCKED
// slots are preserved for audit when their window is invalidated while
// booked; there is no path back from BLOCKED to AVAILABLE — re-opening a
// window means regenerating its slots from scratch.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBlocked   Status = "BLOCKED"
	StatusInvalid   Status = "INVALID"
)

// Slot is one bookable, service-specific time unit derived from an
// availability window. Once booked it is never mutated except for the flip
// to BLOCKED.
type Slot struct {
	ID              uuid.UUID  `json:"id"`
	AvailabilityID  uuid.UUID  `json:"availability_id"`
	ServiceID       uuid.UUID  `json:"service_id"`
	ServiceConfigID uuid.UUID  `json:"service_config_id"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	DurationMinutes int        `json:"duration_minutes"`
	PriceCents      int64      `json:"price_cents"`
	Status          Status     `json:"status"`
	BookingID       *uuid.UUID `json:"booking_id,omitempty"`
	GeneratedAt     time.Time  `json:"generated_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsBooked reports whether a booking holds this slot.
func (s *Slot) IsBooked() bool { return s.BookingID != nil }

// SeriesScope selects which windows of a recurring series a cleanup targets.
type SeriesScope string

const (
	ScopeAll           SeriesScope = "all"
	ScopeFutureOnly    SeriesScope = "future_only"
	ScopeCancelledOnly SeriesScope = "cancelled_only"
)

// Valid reports whether the scope is one of the known values.
func (s SeriesScope) Valid() bool {
	switch s {
	case ScopeAll, ScopeFutureOnly, ScopeCancelledOnly:
		return true
	}
	return false
}

// CleanupResult is the uniform accounting every cleanup operation returns.
// Operational failures land in Errors with zeroed counts; expected partial
// degradations (preserved booked slots, FK-blocked window deletes) land in
// Warnings.
type CleanupResult struct {
	TotalSlotsProcessed    int      `json:"total_slots_processed"`
	SlotsDeleted           int      `json:"slots_deleted"`
	SlotsMarkedUnavailable int      `json:"slots_marked_unavailable"`
	BookingsAffected       int      `json:"bookings_affected"`
	CustomersNotified      int      `json:"customers_notified"`
	Errors                 []string `json:"errors"`
	Warnings               []string `json:"warnings"`
	ProcessingTimeMs       int64    `json:"processing_time_ms"`
}

// RegenerationResult reports the outcome of rebuilding a window's slots.
type RegenerationResult struct {
	SlotsDeleted     int      `json:"slots_deleted"`
	SlotsCreated     int      `json:"slots_created"`
	Errors           []string `json:"errors"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}
