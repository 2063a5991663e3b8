package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingDisputed  BookingStatus = "disputed"
)

// IsActive reports whether a booking in this status still holds its interval.
func (s BookingStatus) IsActive() bool {
	return s == BookingPending || s == BookingConfirmed
}

const MaxNotesLength = 500

// BookedService is the catalogue entry copied onto a booking at creation time.
type BookedService struct {
	ServiceID     string  `bson:"serviceId" json:"serviceId"`
	Name          string  `bson:"name" json:"name"`
	HourlyRate    float64 `bson:"hourlyRate" json:"hourlyRate"`
	DurationHours float64 `bson:"durationHours" json:"durationHours"`
}

// Subtotal is HourlyRate x DurationHours.
func (s BookedService) Subtotal() float64 {
	return s.HourlyRate * s.DurationHours
}

// Booking is a reservation of a provider's time tied to an escrow payment.
type Booking struct {
	ID                 string          `bson:"id" json:"id"`
	RequesterID        string          `bson:"requester_id" json:"requesterId"`
	ProviderID         string          `bson:"provider_id" json:"providerId"`
	Services           []BookedService `bson:"services" json:"services"`
	StartTime          time.Time       `bson:"start_time" json:"startTime"`
	EndTime            time.Time       `bson:"end_time" json:"endTime"`
	BufferHours        int             `bson:"buffer_hours" json:"bufferHours"`
	DisputeWindowHours int             `bson:"dispute_window_hours" json:"disputeWindowHours"`
	TotalAmount        float64         `bson:"total_amount" json:"totalAmount"`
	Status             BookingStatus   `bson:"status" json:"status"`
	Payment            Payment         `bson:"payment" json:"payment"`
	Notes              string          `bson:"notes,omitempty" json:"notes,omitempty"`
	CancelReason       string          `bson:"cancel_reason,omitempty" json:"cancelReason,omitempty"`
	DisputeReason      string          `bson:"dispute_reason,omitempty" json:"disputeReason,omitempty"`
	CreatedAt          time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `bson:"updated_at" json:"updatedAt"`
	CompletedAt        *time.Time      `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	CancelledAt        *time.Time      `bson:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	DisputedAt         *time.Time      `bson:"disputed_at,omitempty" json:"disputedAt,omitempty"`
}

// DisputeDeadline is the instant after which the requester can no longer dispute.
func (b Booking) DisputeDeadline() time.Time {
	return b.EndTime.Add(time.Duration(b.DisputeWindowHours) * time.Hour)
}

// Clone returns a copy that shares no slices or pointers with b.
func (b Booking) Clone() Booking {
	out := b
	if b.Services != nil {
		out.Services = append([]BookedService(nil), b.Services...)
	}
	out.CompletedAt = cloneTime(b.CompletedAt)
	out.CancelledAt = cloneTime(b.CancelledAt)
	out.DisputedAt = cloneTime(b.DisputedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ServiceRequest is one (service, duration) pair of a BookingRequest.
type ServiceRequest struct {
	ServiceID     string  `json:"serviceId" binding:"required"`
	DurationHours float64 `json:"durationHours" binding:"required"`
}

// BookingRequest is the statically shaped input of CreateBooking. The requester comes from the principal.
type BookingRequest struct {
	ProviderID    string           `json:"providerId" binding:"required"`
	Services      []ServiceRequest `json:"services" binding:"required"`
	StartTime     time.Time        `json:"startTime" binding:"required"`
	Notes         string           `json:"notes"`
	PaymentMethod PaymentMethod    `json:"paymentMethod"`
	Currency      Currency         `json:"currency"`
}

// BookingFilter narrows list queries. An empty Statuses slice matches every status.
type BookingFilter struct {
	Statuses []BookingStatus
	Limit    int64
}

// TransitionEvent is published after every committed status change.
type TransitionEvent struct {
	BookingID   string        `json:"bookingId"`
	RequesterID string        `json:"requesterId"`
	ProviderID  string        `json:"providerId"`
	OldStatus   BookingStatus `json:"oldStatus"`
	NewStatus   BookingStatus `json:"newStatus"`
	Timestamp   time.Time     `json:"timestamp"`
}
