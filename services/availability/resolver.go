package availability

import (
	"fmt"
	"time"

	"escrowbook/models"
)

// Result is the resolver's answer for one candidate interval.
type Result struct {
	WithinDeclaredAvailability bool
	Slot                       models.Slot   // the covering slot, zero when not within availability
	Buffer                     time.Duration // the provider's own buffer, whatever service is booked
}

// Resolve checks that [start, end) fits inside a single declared slot on the provider's local weekday.
// Intervals that cross local midnight never resolve.
func Resolve(provider models.Provider, start, end time.Time) Result {
	res := Result{Buffer: provider.Buffer()}
	if !end.After(start) {
		return res
	}

	loc := provider.Location()
	local := start.In(loc)
	startMin := local.Hour()*60 + local.Minute()
	endMin, ok := endMinute(local, end.In(loc))
	if !ok || endMin <= startMin {
		return res
	}

	for _, day := range provider.Availability {
		if day.DayOfWeek != local.Weekday() {
			continue
		}
		for _, slot := range day.Slots {
			if slot.Start <= startMin && endMin <= slot.End {
				res.WithinDeclaredAvailability = true
				res.Slot = slot
				return res
			}
		}
	}
	return res
}

// endMinute is the wall-clock minute the interval ends at, rounded up, on the start's local date. A
// local midnight end counts as minute 1440 of the start day.
func endMinute(local, endLocal time.Time) (int, bool) {
	wall := endLocal.Hour()*60 + endLocal.Minute()
	if endLocal.Second() != 0 || endLocal.Nanosecond() != 0 {
		wall++
	}
	y, m, d := local.Date()
	ey, em, ed := endLocal.Date()
	if y == ey && m == em && d == ed {
		return wall, wall <= models.MinutesPerDay
	}
	if endLocal.Equal(time.Date(y, m, d+1, 0, 0, 0, 0, local.Location())) {
		return models.MinutesPerDay, true
	}
	return 0, false
}

// ValidateSchedule rejects malformed weekly availability when a provider saves it.
func ValidateSchedule(days []models.DayAvailability) error {
	for _, day := range days {
		if day.DayOfWeek < time.Sunday || day.DayOfWeek > time.Saturday {
			return models.NewValidationError("availability", fmt.Sprintf("invalid day of week %d", day.DayOfWeek))
		}
		for _, slot := range day.Slots {
			if slot.Start < 0 || slot.End > models.MinutesPerDay {
				return models.NewValidationError("availability",
					fmt.Sprintf("%s slot [%d, %d] is outside 0..%d minutes", day.DayOfWeek, slot.Start, slot.End, models.MinutesPerDay))
			}
			if slot.End <= slot.Start {
				return models.NewValidationError("availability",
					fmt.Sprintf("%s slot [%d, %d] ends before it starts", day.DayOfWeek, slot.Start, slot.End))
			}
		}
	}
	return nil
}

// ValidateBufferHours enforces the 0..24 whole-hour range.
func ValidateBufferHours(hours int) error {
	if hours < 0 || hours > models.MaxBufferHours {
		return models.NewValidationError("bufferHours", fmt.Sprintf("must be between 0 and %d", models.MaxBufferHours))
	}
	return nil
}
