package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelane/scheduling-platform/internal/recurrence"
	"github.com/carelane/scheduling-platform/internal/scheduling"
)

// Status tracks the lifecycle of an availability window.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Window is a provider's declared block of bookable time, optionally one
// instance of a recurring series. Slots are generated from it only while it
// is ACCEPTED.
type Window struct {
	ID              uuid.UUID                    `json:"id"`
	ProviderID      uuid.UUID                    `json:"provider_id"`
	OrgID           *uuid.UUID                   `json:"org_id,omitempty"`
	LocationID      *uuid.UUID                   `json:"location_id,omitempty"`
	Start           time.Time                    `json:"start"`
	End             time.Time                    `json:"end"`
	Rule            scheduling.Rule              `json:"scheduling_rule"`
	IntervalMinutes int                          `json:"scheduling_interval,omitempty"`
	IsRecurring     bool                         `json:"is_recurring"`
	Recurrence      *recurrence.Pattern          `json:"recurrence,omitempty"`
	SeriesID        *uuid.UUID                   `json:"series_id,omitempty"`
	Status          Status                       `json:"status"`
	BillingEntity   string                       `json:"billing_entity,omitempty"`
	Services        []scheduling.ServiceOffering `json:"services"`
	CreatedAt       time.Time                    `json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

// Overlaps reports open-interval overlap with [start, end); touching
// endpoints do not overlap.
func (w *Window) Overlaps(start, end time.Time) bool {
	return w.Start.Before(end) && w.End.After(start)
}

// BuilderInput shapes the window for the slot record builder.
func (w *Window) BuilderInput() scheduling.WindowInput {
	return scheduling.WindowInput{
		AvailabilityID:  w.ID,
		Start:           w.Start,
		End:             w.End,
		Rule:            w.Rule,
		IntervalMinutes: w.IntervalMinutes,
		Services:        w.Services,
	}
}
