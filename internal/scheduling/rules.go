package scheduling

import (
	"fmt"
	"time"
)

// Rule governs where inside an availability window a bookable slot may start.
type Rule string

const (
	// RuleContinuous packs slots back-to-back from the window start with no gaps.
	RuleContinuous Rule = "CONTINUOUS"
	// RuleOnTheHour only starts slots at the top of an hour.
	RuleOnTheHour Rule = "ON_THE_HOUR"
	// RuleOnTheHalfHour only starts slots at :00 or :30.
	RuleOnTheHalfHour Rule = "ON_THE_HALF_HOUR"
)

// Valid reports whether r is a known scheduling rule.
func (r Rule) Valid() bool {
	switch r {
	case RuleContinuous, RuleOnTheHour, RuleOnTheHalfHour:
		return true
	}
	return false
}

// TimeSlot is the ephemeral arithmetic output of the rule engine. It has no
// identity and is consumed immediately by the slot record builder.
type TimeSlot struct {
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

// GenerationResult carries the computed slots plus any rule/config errors.
// Errors are non-fatal to callers: a bad input yields an empty slot list.
type GenerationResult struct {
	Slots      []TimeSlot
	TotalSlots int
	Errors     []string
}

// GenerateTimeSlots computes the ordered candidate slots for one service
// inside [start, end) under the given rule. durationMinutes is the service's
// appointment length. intervalMinutes is accepted for rule-specific tuning but
// the aligned rules use their fixed 60/30-minute cadence.
//
// If the service duration does not evenly divide the window, the trailing
// partial period is dropped; no short slot is ever emitted.
func GenerateTimeSlots(start, end time.Time, durationMinutes int, rule Rule, intervalMinutes int) GenerationResult {
	var result GenerationResult

	if !end.After(start) {
		result.Errors = append(result.Errors, "availability end time must be after start time")
	}
	if durationMinutes <= 0 {
		result.Errors = append(result.Errors, "service duration must be a positive number of minutes")
	}
	if len(result.Errors) > 0 {
		return result
	}

	duration := time.Duration(durationMinutes) * time.Minute
	// Slots are seeded from the window start with seconds and below zeroed.
	cleaned := start.Truncate(time.Minute)

	var slots []TimeSlot
	switch rule {
	case RuleContinuous:
		for cursor := cleaned; !cursor.Add(duration).After(end); cursor = cursor.Add(duration) {
			slots = append(slots, TimeSlot{Start: cursor, End: cursor.Add(duration), DurationMinutes: durationMinutes})
		}
	case RuleOnTheHour:
		slots = generateAligned(cleaned, start, end, duration, durationMinutes, 60)
	case RuleOnTheHalfHour:
		slots = generateAligned(cleaned, start, end, duration, durationMinutes, 30)
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unsupported scheduling rule: %s", rule))
		return result
	}

	// Defensive double-check: nothing may spill past the window end.
	for _, s := range slots {
		if s.End.After(end) {
			continue
		}
		result.Slots = append(result.Slots, s)
	}
	result.TotalSlots = len(result.Slots)
	return result
}

// generateAligned emits duration-length slots at every stepMinutes-aligned
// point inside the window, starting from the first aligned instant at or
// after the true window start.
func generateAligned(cleaned, trueStart, end time.Time, duration time.Duration, durationMinutes, stepMinutes int) []TimeSlot {
	step := time.Duration(stepMinutes) * time.Minute

	cursor := nextAlignedTime(cleaned, stepMinutes)
	// Minute truncation can land the aligned point just before the true
	// start; in that case the first usable boundary is one step later.
	if cursor.Before(trueStart) {
		cursor = cursor.Add(step)
	}

	var slots []TimeSlot
	for ; !cursor.Add(duration).After(end); cursor = cursor.Add(step) {
		slots = append(slots, TimeSlot{Start: cursor, End: cursor.Add(duration), DurationMinutes: durationMinutes})
	}
	return slots
}

// nextAlignedTime returns the smallest time at or after t whose minute is a
// multiple of intervalMinutes past the hour, rolling into the next hour when
// the aligned minute reaches 60. t must already be minute-truncated.
func nextAlignedTime(t time.Time, intervalMinutes int) time.Time {
	rem := t.Minute() % intervalMinutes
	if rem == 0 {
		return t
	}
	return t.Add(time.Duration(intervalMinutes-rem) * time.Minute)
}
