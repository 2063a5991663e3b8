package models

import "time"

const (
	DefaultBufferHours        = 2
	MaxBufferHours            = 24
	DefaultDisputeWindowHours = 48
	MinutesPerDay             = 24 * 60
)

// DurationPolicy bounds how long a single service may be booked for. Zero values are unconstrained.
type DurationPolicy struct {
	MinHours  float64 `bson:"minHours,omitempty" json:"minHours,omitempty"`
	MaxHours  float64 `bson:"maxHours,omitempty" json:"maxHours,omitempty"`
	StepHours float64 `bson:"stepHours,omitempty" json:"stepHours,omitempty"` // e.g. 0.5 for half-hour increments
}

// Service is one entry of a provider's catalogue.
type Service struct {
	ID             string         `bson:"id" json:"id"`
	Name           string         `bson:"name" json:"name"`
	HourlyRate     float64        `bson:"hourlyRate" json:"hourlyRate"`
	DurationPolicy DurationPolicy `bson:"durationPolicy" json:"durationPolicy"`
}

// Slot is a window of a day expressed in minutes from local midnight.
type Slot struct {
	Start int `bson:"start" json:"start"`
	End   int `bson:"end" json:"end"`
}

// DayAvailability lists the recurring slots for one weekday.
type DayAvailability struct {
	DayOfWeek time.Weekday `bson:"dayOfWeek" json:"dayOfWeek"`
	Slots     []Slot       `bson:"slots" json:"slots"`
}

// Provider is the read-only calendar owner snapshot consumed by the arbiter.
type Provider struct {
	ID                 string            `bson:"id" json:"id"`
	Name               string            `bson:"name" json:"name"`
	Email              string            `bson:"email" json:"email"`
	Timezone           string            `bson:"timezone,omitempty" json:"timezone,omitempty"` // IANA name, UTC when empty
	Currency           Currency          `bson:"currency,omitempty" json:"currency,omitempty"`
	Services           []Service         `bson:"services" json:"services"`
	Availability       []DayAvailability `bson:"availability" json:"availability"`
	BufferHours        *int              `bson:"bufferHours,omitempty" json:"bufferHours,omitempty"`
	AllowSelfConfirm   bool              `bson:"allowSelfConfirm" json:"allowSelfConfirm"`
	DisputeWindowHours int               `bson:"disputeWindowHours,omitempty" json:"disputeWindowHours,omitempty"`
	CreatedAt          time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// EffectiveBufferHours returns the configured buffer or the platform default.
func (p Provider) EffectiveBufferHours() int {
	if p.BufferHours == nil {
		return DefaultBufferHours
	}
	return *p.BufferHours
}

// Buffer is EffectiveBufferHours as a duration.
func (p Provider) Buffer() time.Duration {
	return time.Duration(p.EffectiveBufferHours()) * time.Hour
}

func (p Provider) EffectiveDisputeWindowHours() int {
	if p.DisputeWindowHours <= 0 {
		return DefaultDisputeWindowHours
	}
	return p.DisputeWindowHours
}

// FindService looks up a catalogue entry by id.
func (p Provider) FindService(id string) (Service, bool) {
	for _, s := range p.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// Location resolves the provider timezone, falling back to UTC.
func (p Provider) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
