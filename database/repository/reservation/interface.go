package reservationRepo

import (
	"context"
	"time"

	"escrowbook/models"
)

// Effect tells Mutate what to persist after the mutation callback ran.
type Effect int

const (
	NoChange Effect = iota
	Save
	// SaveAndRelease writes the booking and frees its reservation in the same unit of work.
	SaveAndRelease
)

// MutateFunc edits b in place. Returning an error aborts without writing anything.
type MutateFunc func(b *models.Booking) (Effect, error)

// TimeField selects the booking timestamp used by ListByStatusBefore.
type TimeField string

const (
	FieldStartTime TimeField = "start_time"
	FieldEndTime   TimeField = "end_time"
	FieldCreatedAt TimeField = "created_at"
)

type ReservationState string

const (
	ReservationHeld     ReservationState = "held"
	ReservationReleased ReservationState = "released"
)

// Reservation is the hold on a provider interval backing exactly one booking.
type Reservation struct {
	BookingID  string           `bson:"booking_id" json:"bookingId"`
	ProviderID string           `bson:"provider_id" json:"providerId"`
	StartTime  time.Time        `bson:"start_time" json:"startTime"`
	EndTime    time.Time        `bson:"end_time" json:"endTime"`
	State      ReservationState `bson:"state" json:"state"`
	CreatedAt  time.Time        `bson:"created_at" json:"createdAt"`
	ReleasedAt *time.Time       `bson:"released_at,omitempty" json:"releasedAt,omitempty"`
}

// ReservationRepository is the only writer of bookings. Every method touching a provider's timeline is
// linearizable with the other methods for the same provider and never blocks unrelated providers.
type ReservationRepository interface {
	// TryReserve checks the provider's held reservations against b's interval with the given buffer and,
	// when none conflicts, records both the reservation and the booking. It returns *models.ConflictError
	// naming the offending booking otherwise.
	TryReserve(ctx context.Context, b *models.Booking, buffer time.Duration) error
	// Release frees the reservation of a booking. It reports true only for the call that freed it.
	Release(ctx context.Context, bookingID string) (bool, error)
	// Discard removes a pending booking and its reservation. Used only to compensate a failed checkout.
	Discard(ctx context.Context, bookingID string) error
	Mutate(ctx context.Context, bookingID string, fn MutateFunc) (*models.Booking, error)

	GetByID(ctx context.Context, bookingID string) (*models.Booking, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error)
	GetReservation(ctx context.Context, bookingID string) (*Reservation, error)
	ListByRequester(ctx context.Context, requesterID string, filter models.BookingFilter) ([]models.Booking, error)
	ListByProvider(ctx context.Context, providerID string, filter models.BookingFilter) ([]models.Booking, error)
	ListByStatusBefore(ctx context.Context, status models.BookingStatus, field TimeField, before time.Time, limit int64) ([]models.Booking, error)
}

func conflictFor(r Reservation, buffer time.Duration) *models.ConflictError {
	return &models.ConflictError{
		Reason:      models.ConflictBooking,
		BookingID:   r.BookingID,
		Start:       r.StartTime,
		End:         r.EndTime,
		BufferHours: int(buffer / time.Hour),
	}
}
