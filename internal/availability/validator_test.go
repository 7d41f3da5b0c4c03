package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/scheduling-platform/internal/recurrence"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubWindowFinder struct {
	windows     []Window
	bookedCount map[uuid.UUID]int
	findErr     error

	lastStatuses  []Status
	lastExcludeID *uuid.UUID
}

func (s *stubWindowFinder) FindByProviderAndStatus(ctx context.Context, providerID uuid.UUID, statuses []Status, excludeID *uuid.UUID) ([]Window, error) {
	s.lastStatuses = statuses
	s.lastExcludeID = excludeID
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []Window
	for _, w := range s.windows {
		if w.ProviderID != providerID {
			continue
		}
		if excludeID != nil && w.ID == *excludeID {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *stubWindowFinder) CountBookedSlots(ctx context.Context, availabilityID uuid.UUID) (int, error) {
	return s.bookedCount[availabilityID], nil
}

// testNow is a fixed mid-month instant so look-ahead bounds are stable.
var testNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestValidator(finder *stubWindowFinder) *Validator {
	return NewValidator(finder, fixedClock{now: testNow})
}

func TestValidateAvailabilityHappyPath(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})
	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      testNow.Add(24 * time.Hour),
		End:        testNow.Add(26 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
}

func TestValidateAvailabilityDurationFloor(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})
	start := testNow.Add(24 * time.Hour)

	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      start,
		End:        start.Add(14 * time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "15 minutes")

	// Exactly 15 minutes passes.
	res, err = v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      start,
		End:        start.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestValidateAvailabilityInvertedRange(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})
	start := testNow.Add(24 * time.Hour)

	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      start,
		End:        start.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "end time must be after start")
}

func TestValidateAvailabilityLookBackBound(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})

	// Exactly at the 30-day boundary is accepted.
	boundary := testNow.AddDate(0, 0, -30)
	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      boundary,
		End:        boundary.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	// One minute earlier is rejected.
	res, err = v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      boundary.Add(-time.Minute),
		End:        boundary.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "30 days in the past")
}

func TestValidateAvailabilityLookAheadBound(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})

	// testNow is mid-March; bookings are open through the end of May.
	endOfMay := time.Date(2025, time.May, 31, 23, 0, 0, 0, time.UTC)
	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      endOfMay,
		End:        endOfMay.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid, "end of second following month should be accepted: %v", res.Errors)

	firstOfJune := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	res, err = v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      firstOfJune,
		End:        firstOfJune.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "cannot start after")
}

func TestValidateAvailabilityOverlapReportsBothRanges(t *testing.T) {
	providerID := uuid.New()
	existingStart := time.Date(2025, time.April, 1, 14, 30, 0, 0, time.UTC)
	finder := &stubWindowFinder{windows: []Window{{
		ID:         uuid.New(),
		ProviderID: providerID,
		Start:      existingStart,
		End:        existingStart.Add(time.Hour),
		Status:     StatusAccepted,
	}}}
	v := newTestValidator(finder)

	proposed := time.Date(2025, time.April, 1, 14, 0, 0, 0, time.UTC)
	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: providerID,
		Start:      proposed,
		End:        proposed.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "14:00")
	assert.Contains(t, res.Errors[0], "14:30")
	assert.Equal(t, []Status{StatusAccepted, StatusPending}, finder.lastStatuses)
}

func TestValidateAvailabilityTouchingEndpointsDoNotOverlap(t *testing.T) {
	providerID := uuid.New()
	existingStart := time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)
	finder := &stubWindowFinder{windows: []Window{{
		ID:         uuid.New(),
		ProviderID: providerID,
		Start:      existingStart,
		End:        existingStart.Add(time.Hour),
		Status:     StatusPending,
	}}}
	v := newTestValidator(finder)

	// Proposed window ends exactly where the existing one starts.
	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: providerID,
		Start:      existingStart.Add(-time.Hour),
		End:        existingStart,
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestValidateAvailabilityExcludesSelfOnUpdate(t *testing.T) {
	providerID := uuid.New()
	windowID := uuid.New()
	start := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	finder := &stubWindowFinder{windows: []Window{{
		ID:         windowID,
		ProviderID: providerID,
		Start:      start,
		End:        start.Add(2 * time.Hour),
		Status:     StatusAccepted,
	}}}
	v := newTestValidator(finder)

	// Re-validating the window's own time range with itself excluded must
	// not report a self-overlap.
	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID:            providerID,
		Start:                 start,
		End:                   start.Add(2 * time.Hour),
		ExcludeAvailabilityID: &windowID,
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.NotNil(t, finder.lastExcludeID)
	assert.Equal(t, windowID, *finder.lastExcludeID)
}

func TestOverlapSymmetry(t *testing.T) {
	aStart := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	a := Window{Start: aStart, End: aStart.Add(2 * time.Hour)}
	b := Window{Start: aStart.Add(time.Hour), End: aStart.Add(3 * time.Hour)}

	assert.True(t, a.Overlaps(b.Start, b.End))
	assert.True(t, b.Overlaps(a.Start, a.End))

	c := Window{Start: aStart.Add(2 * time.Hour), End: aStart.Add(4 * time.Hour)}
	assert.False(t, a.Overlaps(c.Start, c.End))
	assert.False(t, c.Overlaps(a.Start, a.End))
}

func TestValidateAvailabilityCollectsAllErrors(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})

	// 10-minute window starting 40 days in the past: duration and look-back
	// violations reported together.
	start := testNow.AddDate(0, 0, -40)
	res, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      start,
		End:        start.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Len(t, res.Errors, 2)
}

func TestValidateAvailabilityStoreFailure(t *testing.T) {
	finder := &stubWindowFinder{findErr: errors.New("connection refused")}
	v := newTestValidator(finder)

	_, err := v.ValidateAvailability(context.Background(), ValidateInput{
		ProviderID: uuid.New(),
		Start:      testNow.Add(24 * time.Hour),
		End:        testNow.Add(25 * time.Hour),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load provider windows")
}

func TestValidateRecurringAvailabilityPairwiseOverlap(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})

	day1 := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	instances := []recurrence.Instance{
		{Start: day1, End: day1.Add(2 * time.Hour)},
		{Start: day1.Add(time.Hour), End: day1.Add(3 * time.Hour)}, // overlaps the first
		{Start: day1.AddDate(0, 0, 1), End: day1.AddDate(0, 0, 1).Add(2 * time.Hour)},
	}

	res, err := v.ValidateRecurringAvailability(context.Background(), uuid.New(), instances)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "overlap each other")
}

func TestValidateRecurringAvailabilityInstanceAgainstExisting(t *testing.T) {
	providerID := uuid.New()
	day2 := time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)
	finder := &stubWindowFinder{windows: []Window{{
		ID:         uuid.New(),
		ProviderID: providerID,
		Start:      day2.Add(30 * time.Minute),
		End:        day2.Add(90 * time.Minute),
		Status:     StatusAccepted,
	}}}
	v := newTestValidator(finder)

	day1 := day2.AddDate(0, 0, -1)
	instances := []recurrence.Instance{
		{Start: day1, End: day1.Add(time.Hour)},
		{Start: day2, End: day2.Add(time.Hour)}, // collides with the existing window
		{Start: day2.AddDate(0, 0, 1), End: day2.AddDate(0, 0, 1).Add(time.Hour)},
	}

	res, err := v.ValidateRecurringAvailability(context.Background(), providerID, instances)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "overlaps existing availability")
}

func TestValidateRecurringAvailabilityEmptyBatch(t *testing.T) {
	v := newTestValidator(&stubWindowFinder{})
	res, err := v.ValidateRecurringAvailability(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "no instances")
}

func TestCanUpdateAvailability(t *testing.T) {
	freeID := uuid.New()
	bookedID := uuid.New()
	finder := &stubWindowFinder{bookedCount: map[uuid.UUID]int{bookedID: 3}}
	v := newTestValidator(finder)

	eligibility, err := v.CanUpdateAvailability(context.Background(), freeID)
	require.NoError(t, err)
	assert.True(t, eligibility.CanUpdate)
	assert.Zero(t, eligibility.BookedSlotCount)

	eligibility, err = v.CanUpdateAvailability(context.Background(), bookedID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanUpdate)
	assert.Equal(t, 3, eligibility.BookedSlotCount)
}

func TestValidateAvailabilityUpdateBlockedByBookings(t *testing.T) {
	providerID := uuid.New()
	windowID := uuid.New()
	finder := &stubWindowFinder{bookedCount: map[uuid.UUID]int{windowID: 2}}
	v := newTestValidator(finder)

	start := testNow.Add(48 * time.Hour)
	res, err := v.ValidateAvailabilityUpdate(context.Background(), windowID, ValidateInput{
		ProviderID: providerID,
		Start:      start,
		End:        start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "2 booked slot(s)")
}

func TestValidationConstraints(t *testing.T) {
	c := ValidationConstraints()
	assert.Equal(t, 15, c.MinDurationMinutes)
	assert.Equal(t, 30, c.MaxLookBackDays)
	assert.Equal(t, 2, c.MaxLookAheadMonths)
}
