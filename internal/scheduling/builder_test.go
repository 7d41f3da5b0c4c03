package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlotDataForAvailability(t *testing.T) {
	availabilityID := uuid.New()
	generatedAt := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	consult := ServiceOffering{ServiceID: uuid.New(), ServiceConfigID: uuid.New(), DurationMinutes: 30, PriceCents: 12000}
	followUp := ServiceOffering{ServiceID: uuid.New(), ServiceConfigID: uuid.New(), DurationMinutes: 60, PriceCents: 20000}

	result := GenerateSlotDataForAvailability(availabilityID, at(9, 0), at(11, 0), RuleContinuous, 0,
		[]ServiceOffering{consult, followUp}, generatedAt)

	require.Empty(t, result.Errors)
	// 4 thirty-minute slots + 2 sixty-minute slots.
	require.Len(t, result.Records, 6)
	assert.Equal(t, 6, result.TotalSlots)

	for _, rec := range result.Records {
		assert.Equal(t, availabilityID, rec.AvailabilityID)
		assert.Equal(t, RecordStatusAvailable, rec.Status)
		assert.Equal(t, generatedAt, rec.GeneratedAt)
	}

	var consultCount, followUpCount int
	for _, rec := range result.Records {
		switch rec.ServiceID {
		case consult.ServiceID:
			consultCount++
			assert.Equal(t, 30, rec.DurationMinutes)
			assert.Equal(t, int64(12000), rec.PriceCents)
		case followUp.ServiceID:
			followUpCount++
			assert.Equal(t, 60, rec.DurationMinutes)
			assert.Equal(t, int64(20000), rec.PriceCents)
		}
	}
	assert.Equal(t, 4, consultCount)
	assert.Equal(t, 2, followUpCount)
}

func TestGenerateSlotDataPartialFailurePerService(t *testing.T) {
	availabilityID := uuid.New()
	good := ServiceOffering{ServiceID: uuid.New(), DurationMinutes: 30, PriceCents: 5000}
	bad := ServiceOffering{ServiceID: uuid.New(), DurationMinutes: 0, PriceCents: 5000}

	result := GenerateSlotDataForAvailability(availabilityID, at(9, 0), at(10, 0), RuleContinuous, 0,
		[]ServiceOffering{bad, good}, time.Now().UTC())

	// The bad service reports an error but does not block the good one.
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], bad.ServiceID.String())
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Equal(t, good.ServiceID, rec.ServiceID)
	}
}

func TestGenerateSlotDataForMultipleAvailability(t *testing.T) {
	svc := ServiceOffering{ServiceID: uuid.New(), DurationMinutes: 30, PriceCents: 8000}
	windows := []WindowInput{
		{AvailabilityID: uuid.New(), Start: at(9, 0), End: at(10, 0), Rule: RuleContinuous, Services: []ServiceOffering{svc}},
		{AvailabilityID: uuid.New(), Start: at(14, 0), End: at(15, 30), Rule: RuleContinuous, Services: []ServiceOffering{svc}},
		{AvailabilityID: uuid.New(), Start: at(16, 0), End: at(15, 0), Rule: RuleContinuous, Services: []ServiceOffering{svc}},
	}

	result := GenerateSlotDataForMultipleAvailability(windows, time.Now().UTC())

	// 2 + 3 slots from the valid windows, one error from the inverted one.
	assert.Equal(t, 5, result.TotalSlots)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "end time must be after start")

	byWindow := map[string]int{}
	for _, rec := range result.Records {
		byWindow[rec.AvailabilityID.String()]++
	}
	assert.Equal(t, 2, byWindow[windows[0].AvailabilityID.String()])
	assert.Equal(t, 3, byWindow[windows[1].AvailabilityID.String()])
}

func TestGenerateSlotDataEmptyServices(t *testing.T) {
	result := GenerateSlotDataForAvailability(uuid.New(), at(9, 0), at(11, 0), RuleContinuous, 0, nil, time.Now().UTC())
	assert.Empty(t, result.Records)
	assert.Empty(t, result.Errors)
	assert.Zero(t, result.TotalSlots)
}
