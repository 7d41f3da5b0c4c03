package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordStatusAvailable is the status every freshly generated slot record
// carries. The slots package owns the full status lifecycle.
const RecordStatusAvailable = "AVAILABLE"

// ServiceOffering describes one bookable service attached to an availability
// window. Each offering produces its own slot cadence.
type ServiceOffering struct {
	ServiceID       uuid.UUID `json:"service_id"`
	ServiceConfigID uuid.UUID `json:"service_config_id"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
}

// SlotRecord is a persistable slot row shaped from rule-engine output. The
// builder never touches storage; the orchestration layer persists batches.
type SlotRecord struct {
	AvailabilityID  uuid.UUID
	ServiceID       uuid.UUID
	ServiceConfigID uuid.UUID
	Start           time.Time
	End             time.Time
	DurationMinutes int
	PriceCents      int64
	Status          string
	GeneratedAt     time.Time
}

// BuildResult accumulates records and per-service errors. One service's
// generation failure does not block the remaining services.
type BuildResult struct {
	Records    []SlotRecord
	TotalSlots int
	Errors     []string
}

// WindowInput feeds the multi-window builder variant.
type WindowInput struct {
	AvailabilityID  uuid.UUID
	Start           time.Time
	End             time.Time
	Rule            Rule
	IntervalMinutes int
	Services        []ServiceOffering
}

// GenerateSlotDataForAvailability runs the rule engine once per service and
// converts the resulting time slots into persistable records for the window.
func GenerateSlotDataForAvailability(availabilityID uuid.UUID, start, end time.Time, rule Rule, intervalMinutes int, services []ServiceOffering, generatedAt time.Time) BuildResult {
	var result BuildResult

	for _, svc := range services {
		gen := GenerateTimeSlots(start, end, svc.DurationMinutes, rule, intervalMinutes)
		for _, e := range gen.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("service %s: %s", svc.ServiceID, e))
		}
		for _, slot := range gen.Slots {
			result.Records = append(result.Records, SlotRecord{
				AvailabilityID:  availabilityID,
				ServiceID:       svc.ServiceID,
				ServiceConfigID: svc.ServiceConfigID,
				Start:           slot.Start,
				End:             slot.End,
				DurationMinutes: slot.DurationMinutes,
				PriceCents:      svc.PriceCents,
				Status:          RecordStatusAvailable,
				GeneratedAt:     generatedAt,
			})
		}
	}

	result.TotalSlots = len(result.Records)
	return result
}

// GenerateSlotDataForMultipleAvailability flattens per-window builds for a
// recurring batch. Errors and totals accumulate across all windows.
func GenerateSlotDataForMultipleAvailability(windows []WindowInput, generatedAt time.Time) BuildResult {
	var result BuildResult

	for _, w := range windows {
		br := GenerateSlotDataForAvailability(w.AvailabilityID, w.Start, w.End, w.Rule, w.IntervalMinutes, w.Services, generatedAt)
		result.Records = append(result.Records, br.Records...)
		result.Errors = append(result.Errors, br.Errors...)
	}

	result.TotalSlots = len(result.Records)
	return result
}
