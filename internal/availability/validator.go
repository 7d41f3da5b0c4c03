package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/scheduling-platform/internal/recurrence"
)

// Clock supplies the current time. Injected so validation bounds can be
// pinned in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Constraints are the fixed validation policy constants, exposed for display.
type Constraints struct {
	MinDurationMinutes int `json:"min_duration_minutes"`
	MaxLookBackDays    int `json:"max_look_back_days"`
	MaxLookAheadMonths int `json:"max_look_ahead_months"`
}

/// ValidationConstraints returns the policy bounds enforced by the validator:
// a 15-minute duration floor, a 30-day look-back, and a look-ahead through
// the end of the current month plus two calendar months.
func ValidationConstraints() Constraints {
	return Constraints{
		MinDurationMinutes: 15,
		MaxLookBackDays:    30,
		MaxLookAheadMonths: 2,
	}
}

// WindowFinder loads a provider's existing windows for overlap checks and
// reports how many of a window's slots carry bookings.
type WindowFinder interface {
	FindByProviderAndStatus(ctx context.Context, providerID uuid.UUID, statuses []Status, excludeID *uuid.UUID) ([]Window, error)
	CountBookedSlots(ctx context.Context, availabilityID uuid.UUID) (int, error)
}

// ValidationResult collects every violated rule; callers display all errors,
// not just the first.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.IsValid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// UpdateEligibility reports whether a window may take a destructive
// time/schedule update and how many bookings stand in the way.
type UpdateEligibility struct {
	CanUpdate       bool `json:"can_update"`
	BookedSlotCount int  `json:"booked_slot_count"`
}

// ValidateInput describes a proposed (or updated) availability window.
// Instances is supplied for a recurring batch; otherwise the single
// Start/End pair is validated.
type ValidateInput struct {
	ProviderID            uuid.UUID
	Start                 time.Time
	End                   time.Time
	ExcludeAvailabilityID *uuid.UUID
	Instances             []recurrence.Instance
}

// Validator enforces duration, look-back/ahead bounds, and temporal overlap
// rules for availability windows.
type Validator struct {
	windows WindowFinder
	clock   Clock
}

// NewValidator creates a validator. A nil clock falls back to the system
// clock.
func NewValidator(windows WindowFinder, clock Clock) *Validator {
	if windows == nil {
		panic("availability: window finder required")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Validator{windows: windows, clock: clock}
}

// ValidateAvailability runs every check and collects all violations. A
// returned error means the store failed, not that the input is invalid.
func (v *Validator) ValidateAvailability(ctx context.Context, in ValidateInput) (*ValidationResult, error) {
	result := &ValidationResult{IsValid: true}
	now := v.clock.Now()

	v.checkTimeRange(result, in.Start, in.End, now, "")

	instances := in.Instances
	if len(instances) == 0 {
		instances = []recurrence.Instance{{Start: in.Start, End: in.End}}
	}

	existing, err := v.windows.FindByProviderAndStatus(ctx, in.ProviderID,
		[]Status{StatusAccepted, StatusPending}, in.ExcludeAvailabilityID)
	if err != nil {
		return nil, fmt.Errorf("availability: load provider windows: %w", err)
	}

	for _, inst := range instances {
		for i := range existing {
			w := &existing[i]
			if w.Overlaps(inst.Start, inst.End) {
				result.addError("time range %s overlaps existing availability %s",
					formatRange(inst.Start, inst.End), formatRange(w.Start, w.End))
			}
		}
	}

	return result, nil
}

// ValidateRecurringAvailability validates every instance of a proposed
// recurring batch individually, then cross-checks the batch for instances
// that overlap each other.
func (v *Validator) ValidateRecurringAvailability(ctx context.Context, providerID uuid.UUID, instances []recurrence.Instance) (*ValidationResult, error) {
	result := &ValidationResult{IsValid: true}
	now := v.clock.Now()

	if len(instances) == 0 {
		result.addError("recurring availability produced no instances")
		return result, nil
	}
	if len(instances) > recurrence.MaxInstances {
		result.addError("recurring availability exceeds the maximum of %d instances", recurrence.MaxInstances)
		return result, nil
	}

	for _, inst := range instances {
		v.checkTimeRange(result, inst.Start, inst.End, now, fmt.Sprintf("instance %s: ", formatRange(inst.Start, inst.End)))
	}

	existing, err := v.windows.FindByProviderAndStatus(ctx, providerID,
		[]Status{StatusAccepted, StatusPending}, nil)
	if err != nil {
		return nil, fmt.Errorf("availability: load provider windows: %w", err)
	}
	for _, inst := range instances {
		for i := range existing {
			w := &existing[i]
			if w.Overlaps(inst.Start, inst.End) {
				result.addError("time range %s overlaps existing availability %s",
					formatRange(inst.Start, inst.End), formatRange(w.Start, w.End))
			}
		}
	}

	// Pairwise check inside the batch itself.
	for i := 0; i < len(instances); i++ {
		for j := i + 1; j < len(instances); j++ {
			a, b := instances[i], instances[j]
			if a.Start.Before(b.End) && a.End.After(b.Start) {
				result.addError("recurring instances %s and %s overlap each other",
					formatRange(a.Start, a.End), formatRange(b.Start, b.End))
			}
		}
	}

	return result, nil
}

// ValidateAvailabilityUpdate validates the proposed new shape of an existing
// window, excluding the window itself from the overlap check, and rejects
// the update while the window has booked slots.
func (v *Validator) ValidateAvailabilityUpdate(ctx context.Context, windowID uuid.UUID, in ValidateInput) (*ValidationResult, error) {
	in.ExcludeAvailabilityID = &windowID

	result, err := v.ValidateAvailability(ctx, in)
	if err != nil {
		return nil, err
	}

	eligibility, err := v.CanUpdateAvailability(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanUpdate {
		result.addError("availability has %d booked slot(s) and cannot be rescheduled", eligibility.BookedSlotCount)
	}

	return result, nil
}

// CanUpdateAvailability reports whether a window is eligible for a
// destructive time/schedule update: it must have zero booked slots.
func (v *Validator) CanUpdateAvailability(ctx context.Context, availabilityID uuid.UUID) (*UpdateEligibility, error) {
	booked, err := v.windows.CountBookedSlots(ctx, availabilityID)
	if err != nil {
		return nil, fmt.Errorf("availability: count booked slots: %w", err)
	}
	return &UpdateEligibility{CanUpdate: booked == 0, BookedSlotCount: booked}, nil
}

// checkTimeRange applies the duration floor and the look-back/look-ahead
// bounds to one start/end pair.
func (v *Validator) checkTimeRange(result *ValidationResult, start, end time.Time, now time.Time, prefix string) {
	c := ValidationConstraints()

	if !end.After(start) {
		result.addError("%savailability end time must be after start time", prefix)
	}

	minutes := int(end.Truncate(time.Minute).Sub(start.Truncate(time.Minute)).Minutes())
	if end.After(start) && minutes < c.MinDurationMinutes {
		result.addError("%savailability must be at least %d minutes long", prefix, c.MinDurationMinutes)
	}

	earliest := now.AddDate(0, 0, -c.MaxLookBackDays)
	if start.Before(earliest) {
		result.addError("%savailability cannot start more than %d days in the past", prefix, c.MaxLookBackDays)
	}

	// Bounded to the current month plus the following two calendar months.
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	limit := firstOfMonth.AddDate(0, c.MaxLookAheadMonths+1, 0)
	if !start.Before(limit) {
		result.addError("%savailability cannot start after %s", prefix, limit.AddDate(0, 0, -1).Format("2006-01-02"))
	}
}

func formatRange(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))
}
