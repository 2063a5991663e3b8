// Package lifecycle owns every booking status change. Each operation is a single Mutate on the
// reservation store, so the status write and the reservation release commit together.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	reservationRepo "escrowbook/database/repository/reservation"
	"escrowbook/models"
	"escrowbook/services/notification"
)

const defaultPublishTimeout = 10 * time.Second

// Outcome is the result of a payment-driven or cancelling transition.
type Outcome struct {
	Booking *models.Booking
	Changed bool
	// RefundDue is set when the booking is cancelled while funds are still captured or held.
	RefundDue bool
}

type Engine struct {
	repo     reservationRepo.ReservationRepository
	notifier notification.Notifier
	logger   *zap.Logger

	Clock          func() time.Time
	PublishTimeout time.Duration

	inflight sync.WaitGroup
}

func NewEngine(repo reservationRepo.ReservationRepository, notifier notification.Notifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:           repo,
		notifier:       notifier,
		logger:         logger,
		Clock:          time.Now,
		PublishTimeout: defaultPublishTimeout,
	}
}

func (e *Engine) now() time.Time {
	return e.Clock().UTC()
}

// Open stamps a new booking as pending and reserves its interval.
func (e *Engine) Open(ctx context.Context, b *models.Booking, buffer time.Duration) error {
	now := e.now()
	b.Status = models.BookingPending
	b.Payment.Status = models.PaymentPending
	b.Payment.UpdatedAt = now
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := e.repo.TryReserve(ctx, b, buffer); err != nil {
		return err
	}
	e.logger.Info("booking opened",
		zap.String("bookingID", b.ID),
		zap.String("providerID", b.ProviderID),
		zap.Time("start", b.StartTime),
		zap.Time("end", b.EndTime))
	return nil
}

// Announce publishes the creation event once the checkout session is in place.
func (e *Engine) Announce(b *models.Booking) {
	e.publish(eventFor(b, "", b.CreatedAt))
}

func (e *Engine) AttachSession(ctx context.Context, bookingID, sessionID string) (*models.Booking, error) {
	return e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		if b.Status != models.BookingPending {
			return reservationRepo.NoChange, &models.TransitionError{
				BookingID: b.ID, From: b.Status, To: b.Status,
				Reason: "payment session can only be attached to a pending booking",
			}
		}
		if b.Payment.SessionID == sessionID {
			return reservationRepo.NoChange, nil
		}
		b.Payment.SessionID = sessionID
		b.Payment.UpdatedAt = now
		return reservationRepo.Save, nil
	})
}

// ApplyPayment moves the booking according to a gateway-reported payment status. Replays and stale
// reports leave the booking untouched.
func (e *Engine) ApplyPayment(ctx context.Context, bookingID string, status models.PaymentStatus) (Outcome, error) {
	switch status {
	case models.PaymentSucceeded, models.PaymentHeld, models.PaymentFailed:
	default:
		return Outcome{}, models.NewValidationError("paymentStatus", fmt.Sprintf("%q is not reported by the gateway", status))
	}

	var changed bool
	b, err := e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		changed = false
		current := b.Payment.Status
		if current == status || !CanTransitionPayment(current, status) {
			return reservationRepo.NoChange, nil
		}
		b.Payment.Status = status
		b.Payment.UpdatedAt = now
		changed = true

		if status == models.PaymentFailed {
			// a provider may have confirmed before payment; the unpaid booking still falls through
			if !b.Status.IsActive() {
				return reservationRepo.Save, nil
			}
			b.Status = models.BookingCancelled
			b.CancelledAt = &now
			b.CancelReason = "payment failed"
			return reservationRepo.SaveAndRelease, nil
		}

		if b.Status == models.BookingPending {
			b.Status = models.BookingConfirmed
		}
		return reservationRepo.Save, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Booking: b, Changed: changed, RefundDue: refundDue(b)}, nil
}

// Confirm lets the assigned provider accept a pending booking. Unpaid bookings need allowUnpaid.
func (e *Engine) Confirm(ctx context.Context, bookingID, providerID string, allowUnpaid bool) (*models.Booking, error) {
	return e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		if b.ProviderID != providerID {
			return reservationRepo.NoChange, &models.ForbiddenError{ActorID: providerID, BookingID: b.ID, Action: "confirm"}
		}
		if !CanTransition(b.Status, models.BookingConfirmed) {
			return reservationRepo.NoChange, &models.TransitionError{BookingID: b.ID, From: b.Status, To: models.BookingConfirmed}
		}
		if !b.Payment.Status.IsSettled() && !allowUnpaid {
			return reservationRepo.NoChange, &models.TransitionError{
				BookingID: b.ID, From: b.Status, To: models.BookingConfirmed,
				Reason: "payment not settled",
			}
		}
		b.Status = models.BookingConfirmed
		return reservationRepo.Save, nil
	})
}

// Cancel is open to either party, an admin, or the system sweeps, while the booking is active.
func (e *Engine) Cancel(ctx context.Context, bookingID string, actor models.Principal, reason string) (Outcome, error) {
	reason = strings.TrimSpace(reason)
	b, err := e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		if !isParty(b, actor) && !actor.IsAdmin() && !actor.IsSystem() {
			return reservationRepo.NoChange, &models.ForbiddenError{ActorID: actor.ID, BookingID: b.ID, Action: "cancel"}
		}
		if !b.Status.IsActive() {
			return reservationRepo.NoChange, &models.TransitionError{BookingID: b.ID, From: b.Status, To: models.BookingCancelled}
		}
		b.Status = models.BookingCancelled
		b.CancelledAt = &now
		b.CancelReason = reason
		return reservationRepo.SaveAndRelease, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Booking: b, Changed: true, RefundDue: refundDue(b)}, nil
}

// Complete closes a confirmed booking and releases the escrowed funds. The provider may complete once
// the booking has ended; the system sweep only after the dispute window closed.
func (e *Engine) Complete(ctx context.Context, bookingID string, actor models.Principal) (*models.Booking, error) {
	return e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		switch {
		case actor.IsSystem():
			if now.Before(b.DisputeDeadline()) {
				return reservationRepo.NoChange, &models.TransitionError{
					BookingID: b.ID, From: b.Status, To: models.BookingCompleted,
					Reason: "dispute window still open",
				}
			}
		case actor.IsAdmin() || actor.ID == b.ProviderID:
			if now.Before(b.EndTime) {
				return reservationRepo.NoChange, &models.TransitionError{
					BookingID: b.ID, From: b.Status, To: models.BookingCompleted,
					Reason: "booking has not ended",
				}
			}
		default:
			return reservationRepo.NoChange, &models.ForbiddenError{ActorID: actor.ID, BookingID: b.ID, Action: "complete"}
		}
		if b.Status != models.BookingConfirmed {
			return reservationRepo.NoChange, &models.TransitionError{BookingID: b.ID, From: b.Status, To: models.BookingCompleted}
		}
		finish(b, now)
		return reservationRepo.SaveAndRelease, nil
	})
}

// Dispute freezes a confirmed booking until an admin resolves it.
func (e *Engine) Dispute(ctx context.Context, bookingID, requesterID, reason string) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("reason", "a dispute needs a reason")
	}
	if len(reason) > models.MaxNotesLength {
		return nil, models.NewValidationError("reason", fmt.Sprintf("must be at most %d characters", models.MaxNotesLength))
	}
	return e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		if b.RequesterID != requesterID {
			return reservationRepo.NoChange, &models.ForbiddenError{ActorID: requesterID, BookingID: b.ID, Action: "dispute"}
		}
		if !CanTransition(b.Status, models.BookingDisputed) {
			return reservationRepo.NoChange, &models.TransitionError{BookingID: b.ID, From: b.Status, To: models.BookingDisputed}
		}
		if !now.Before(b.DisputeDeadline()) {
			return reservationRepo.NoChange, &models.TransitionError{
				BookingID: b.ID, From: b.Status, To: models.BookingDisputed,
				Reason: "dispute window closed",
			}
		}
		b.Status = models.BookingDisputed
		b.DisputedAt = &now
		b.DisputeReason = reason
		return reservationRepo.SaveAndRelease, nil
	})
}

// ResolveDispute settles a disputed booking as completed (funds released) or cancelled (refund due).
func (e *Engine) ResolveDispute(ctx context.Context, bookingID string, outcome models.BookingStatus, actor models.Principal) (Outcome, error) {
	if !actor.IsAdmin() {
		return Outcome{}, &models.ForbiddenError{ActorID: actor.ID, BookingID: bookingID, Action: "resolve"}
	}
	if outcome != models.BookingCompleted && outcome != models.BookingCancelled {
		return Outcome{}, models.NewValidationError("outcome", "must be completed or cancelled")
	}
	b, err := e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		if b.Status != models.BookingDisputed {
			return reservationRepo.NoChange, &models.TransitionError{
				BookingID: b.ID, From: b.Status, To: outcome,
				Reason: "only disputed bookings can be resolved",
			}
		}
		if outcome == models.BookingCompleted {
			finish(b, now)
		} else {
			b.Status = models.BookingCancelled
			b.CancelledAt = &now
			b.CancelReason = "dispute resolved for requester"
		}
		return reservationRepo.SaveAndRelease, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Booking: b, Changed: true, RefundDue: refundDue(b)}, nil
}

// MarkRefunded records a refund issued by the gateway.
func (e *Engine) MarkRefunded(ctx context.Context, bookingID string) (*models.Booking, error) {
	return e.apply(ctx, bookingID, func(b *models.Booking, now time.Time) (reservationRepo.Effect, error) {
		if b.Payment.Status == models.PaymentRefunded {
			return reservationRepo.NoChange, nil
		}
		if !CanTransitionPayment(b.Payment.Status, models.PaymentRefunded) {
			return reservationRepo.NoChange, &models.TransitionError{
				BookingID: b.ID, From: b.Status, To: b.Status,
				Reason: fmt.Sprintf("payment %s cannot be refunded", b.Payment.Status),
			}
		}
		b.Payment.Status = models.PaymentRefunded
		b.Payment.UpdatedAt = now
		return reservationRepo.Save, nil
	})
}

// Wait blocks until in-flight notifications have been handed off.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) apply(ctx context.Context, bookingID string, fn func(b *models.Booking, now time.Time) (reservationRepo.Effect, error)) (*models.Booking, error) {
	now := e.now()
	var from models.BookingStatus
	b, err := e.repo.Mutate(ctx, bookingID, func(b *models.Booking) (reservationRepo.Effect, error) {
		from = b.Status
		effect, err := fn(b, now)
		if err != nil || effect == reservationRepo.NoChange {
			return effect, err
		}
		b.UpdatedAt = now
		return effect, nil
	})
	if err != nil {
		return nil, err
	}
	if b.Status != from {
		e.logger.Info("booking transition",
			zap.String("bookingID", b.ID),
			zap.String("from", string(from)),
			zap.String("to", string(b.Status)))
		e.publish(eventFor(b, from, now))
	}
	return b, nil
}

func (e *Engine) publish(ev models.TransitionEvent) {
	if e.notifier == nil {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.PublishTimeout)
		defer cancel()
		if err := e.notifier.Publish(ctx, ev); err != nil {
			e.logger.Warn("failed to publish booking transition",
				zap.String("bookingID", ev.BookingID),
				zap.String("to", string(ev.NewStatus)),
				zap.Error(err))
		}
	}()
}

func eventFor(b *models.Booking, from models.BookingStatus, at time.Time) models.TransitionEvent {
	return models.TransitionEvent{
		BookingID:   b.ID,
		RequesterID: b.RequesterID,
		ProviderID:  b.ProviderID,
		OldStatus:   from,
		NewStatus:   b.Status,
		Timestamp:   at,
	}
}

func finish(b *models.Booking, now time.Time) {
	b.Status = models.BookingCompleted
	b.CompletedAt = &now
	if b.Payment.Status.IsSettled() {
		b.Payment.Status = models.PaymentReleased
		b.Payment.UpdatedAt = now
	}
}

func isParty(b *models.Booking, actor models.Principal) bool {
	return actor.ID != "" && (actor.ID == b.RequesterID || actor.ID == b.ProviderID)
}

func refundDue(b *models.Booking) bool {
	return b.Status == models.BookingCancelled && b.Payment.Status.IsSettled()
}
