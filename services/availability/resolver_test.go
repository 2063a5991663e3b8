package availability

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowbook/models"
)

// 2030-03-04 is a Monday.
func monday(hh, mm int) time.Time {
	return time.Date(2030, time.March, 4, hh, mm, 0, 0, time.UTC)
}

func weekdayProvider() models.Provider {
	return models.Provider{
		ID: "prov-1",
		Availability: []models.DayAvailability{
			{DayOfWeek: time.Monday, Slots: []models.Slot{{Start: 8 * 60, End: 12 * 60}, {Start: 13 * 60, End: 18 * 60}}},
			{DayOfWeek: time.Tuesday, Slots: []models.Slot{{Start: 0, End: models.MinutesPerDay}}},
		},
	}
}

func TestResolve(t *testing.T) {
	p := weekdayProvider()

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside morning slot", monday(9, 0), monday(11, 0), true},
		{"fills slot exactly", monday(8, 0), monday(12, 0), true},
		{"spans the lunch gap", monday(11, 0), monday(14, 0), false},
		{"before opening", monday(7, 30), monday(8, 30), false},
		{"weekday without slots", monday(9, 0).AddDate(0, 0, 2), monday(10, 0).AddDate(0, 0, 2), false},
		{"ends at midnight of a full day", monday(22, 0).AddDate(0, 0, 1), monday(0, 0).AddDate(0, 0, 2), true},
		{"crosses midnight", monday(23, 0).AddDate(0, 0, 1), monday(1, 0).AddDate(0, 0, 2), false},
		{"backwards", monday(11, 0), monday(10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(p, tt.start, tt.end)
			assert.Equal(t, tt.want, res.WithinDeclaredAvailability)
		})
	}
}

func TestResolve_UsesProviderTimezone(t *testing.T) {
	p := weekdayProvider()
	p.Timezone = "Africa/Douala" // UTC+1, no DST

	// 08:30 UTC is 09:30 in Douala.
	res := Resolve(p, monday(8, 30), monday(9, 30))
	assert.True(t, res.WithinDeclaredAvailability)

	// 07:00 UTC is 08:00 local, still open; 06:30 UTC is 07:30 local, closed.
	assert.True(t, Resolve(p, monday(7, 0), monday(8, 0)).WithinDeclaredAvailability)
	assert.False(t, Resolve(p, monday(6, 30), monday(7, 30)).WithinDeclaredAvailability)
}

func TestResolve_DaylightSavingUsesWallClockEnd(t *testing.T) {
	p := models.Provider{
		ID:       "prov-ny",
		Timezone: "America/New_York",
		Availability: []models.DayAvailability{
			{DayOfWeek: time.Sunday, Slots: []models.Slot{{Start: 60, End: 200}}},
		},
	}

	// 2030-03-10: clocks jump from 02:00 EST to 03:00 EDT. 06:00 UTC is 01:00 EST.
	spring := time.Date(2030, time.March, 10, 6, 0, 0, 0, time.UTC)
	assert.True(t, Resolve(p, spring, spring.Add(time.Hour)).WithinDeclaredAvailability)
	// two elapsed hours end at 04:00 EDT, past the 03:20 close
	assert.False(t, Resolve(p, spring, spring.Add(2*time.Hour)).WithinDeclaredAvailability)

	// 2030-11-03: clocks fall back from 02:00 EDT to 01:00 EST. 04:00 UTC is 00:00 EDT.
	p.Availability[0].Slots = []models.Slot{{Start: 0, End: 150}}
	fall := time.Date(2030, time.November, 3, 4, 0, 0, 0, time.UTC)
	assert.True(t, Resolve(p, fall, fall.Add(3*time.Hour)).WithinDeclaredAvailability)
}

func TestResolve_ReportsProviderBuffer(t *testing.T) {
	p := weekdayProvider()
	assert.Equal(t, 2*time.Hour, Resolve(p, monday(9, 0), monday(10, 0)).Buffer)

	zero := 0
	p.BufferHours = &zero
	assert.Equal(t, time.Duration(0), Resolve(p, monday(9, 0), monday(10, 0)).Buffer)
}

func TestValidateSchedule(t *testing.T) {
	require.NoError(t, ValidateSchedule(weekdayProvider().Availability))

	err := ValidateSchedule([]models.DayAvailability{{DayOfWeek: time.Friday, Slots: []models.Slot{{Start: 600, End: 600}}}})
	assert.True(t, models.IsValidation(err))

	err = ValidateSchedule([]models.DayAvailability{{DayOfWeek: time.Friday, Slots: []models.Slot{{Start: 600, End: 1500}}}})
	assert.True(t, models.IsValidation(err))

	err = ValidateSchedule([]models.DayAvailability{{DayOfWeek: 9}})
	assert.True(t, models.IsValidation(err))
}

func TestValidateBufferHours(t *testing.T) {
	assert.NoError(t, ValidateBufferHours(0))
	assert.NoError(t, ValidateBufferHours(24))
	assert.Error(t, ValidateBufferHours(-1))
	assert.Error(t, ValidateBufferHours(25))
}
