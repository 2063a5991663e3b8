package arbiter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	reservationRepo "escrowbook/database/repository/reservation"
	"escrowbook/models"
)

const defaultSweepBatch = 100

// CompleteDue completes confirmed bookings whose dispute window has closed.
func (a *Arbiter) CompleteDue(ctx context.Context, limit int64) (int, error) {
	if limit <= 0 {
		limit = defaultSweepBatch
	}
	now := a.now()
	due, err := a.bookings.ListByStatusBefore(ctx, models.BookingConfirmed, reservationRepo.FieldEndTime, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list bookings due for completion: %w", err)
	}

	completed := 0
	for _, b := range due {
		if now.Before(b.DisputeDeadline()) {
			continue
		}
		if _, err := a.engine.Complete(ctx, b.ID, models.SystemPrincipal); err != nil {
			if models.IsTransition(err) {
				continue
			}
			a.logger.Warn("auto-complete failed", zap.String("bookingID", b.ID), zap.Error(err))
			continue
		}
		completed++
	}
	return completed, nil
}

// ExpireStaleHolds cancels pending bookings whose checkout was never paid within the hold TTL. A
// session that turns out to be paid is reconciled instead.
func (a *Arbiter) ExpireStaleHolds(ctx context.Context, limit int64) (int, error) {
	if limit <= 0 {
		limit = defaultSweepBatch
	}
	cutoff := a.now().Add(-a.opts.HoldTTL)
	stale, err := a.bookings.ListByStatusBefore(ctx, models.BookingPending, reservationRepo.FieldCreatedAt, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale holds: %w", err)
	}

	expired := 0
	for _, b := range stale {
		if b.Payment.SessionID != "" {
			settled, _, err := a.ReconcileSession(ctx, b.Payment.SessionID)
			switch {
			case err != nil:
				a.logger.Warn("hold sweep could not reconcile session",
					zap.String("bookingID", b.ID), zap.Error(err))
			case settled.Status == models.BookingCancelled:
				expired++
				continue
			case settled.Status != models.BookingPending:
				continue
			}
		}

		out, err := a.engine.Cancel(ctx, b.ID, models.SystemPrincipal, "payment hold expired")
		if err != nil {
			if !models.IsTransition(err) {
				a.logger.Warn("hold expiry failed", zap.String("bookingID", b.ID), zap.Error(err))
			}
			continue
		}
		if out.RefundDue {
			if _, err := a.refund(ctx, out.Booking); err != nil {
				continue
			}
		} else {
			a.expireSession(ctx, out.Booking)
		}
		expired++
	}
	return expired, nil
}
