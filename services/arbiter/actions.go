package arbiter

import (
	"context"

	"escrowbook/models"
)

// ConfirmBooking lets the assigned provider accept a booking. Unpaid bookings are accepted only when
// the provider allows self-confirmation.
func (a *Arbiter) ConfirmBooking(ctx context.Context, principal models.Principal, bookingID string) (*models.Booking, error) {
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != principal.ID {
		return nil, &models.ForbiddenError{ActorID: principal.ID, BookingID: bookingID, Action: "confirm"}
	}
	provider, err := a.providers.GetByID(ctx, b.ProviderID)
	if err != nil {
		return nil, err
	}
	return a.engine.Confirm(ctx, bookingID, principal.ID, provider.AllowSelfConfirm)
}

// CancelBooking cancels an active booking, refunding captured funds or closing an unpaid checkout.
func (a *Arbiter) CancelBooking(ctx context.Context, principal models.Principal, bookingID, reason string) (*models.Booking, error) {
	if len(reason) > models.MaxNotesLength {
		return nil, models.NewValidationError("reason", "is too long")
	}
	out, err := a.engine.Cancel(ctx, bookingID, principal, reason)
	if err != nil {
		return nil, err
	}
	if out.RefundDue {
		return a.refund(ctx, out.Booking)
	}
	a.expireSession(ctx, out.Booking)
	return out.Booking, nil
}

func (a *Arbiter) CompleteBooking(ctx context.Context, principal models.Principal, bookingID string) (*models.Booking, error) {
	return a.engine.Complete(ctx, bookingID, principal)
}

func (a *Arbiter) DisputeBooking(ctx context.Context, principal models.Principal, bookingID, reason string) (*models.Booking, error) {
	return a.engine.Dispute(ctx, bookingID, principal.ID, reason)
}

// ResolveDispute is the admin decision on a disputed booking.
func (a *Arbiter) ResolveDispute(ctx context.Context, principal models.Principal, bookingID string, outcome models.BookingStatus) (*models.Booking, error) {
	out, err := a.engine.ResolveDispute(ctx, bookingID, outcome, principal)
	if err != nil {
		return nil, err
	}
	if out.RefundDue {
		return a.refund(ctx, out.Booking)
	}
	return out.Booking, nil
}

// GetBooking returns a booking to one of its parties or an admin.
func (a *Arbiter) GetBooking(ctx context.Context, principal models.Principal, bookingID string) (*models.Booking, error) {
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && principal.ID != b.RequesterID && principal.ID != b.ProviderID {
		return nil, &models.ForbiddenError{ActorID: principal.ID, BookingID: bookingID, Action: "view"}
	}
	return b, nil
}

func (a *Arbiter) ListRequesterBookings(ctx context.Context, principal models.Principal, filter models.BookingFilter) ([]models.Booking, error) {
	return a.bookings.ListByRequester(ctx, principal.ID, filter)
}

func (a *Arbiter) ListProviderBookings(ctx context.Context, principal models.Principal, filter models.BookingFilter) ([]models.Booking, error) {
	if principal.Role != models.RoleProvider {
		return nil, &models.ForbiddenError{ActorID: principal.ID, Action: "list provider bookings of"}
	}
	return a.bookings.ListByProvider(ctx, principal.ID, filter)
}

// SetBookingBuffer updates the calling provider's buffer. Existing bookings keep the buffer they were
// reserved with.
func (a *Arbiter) SetBookingBuffer(ctx context.Context, principal models.Principal, hours int) (*models.Provider, error) {
	if principal.Role != models.RoleProvider {
		return nil, &models.ForbiddenError{ActorID: principal.ID, Action: "set the buffer of"}
	}
	return a.providers.SetBufferHours(ctx, principal.ID, hours)
}
