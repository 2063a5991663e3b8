package arbiter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"escrowbook/models"
	"escrowbook/services/payment"
)

// ReconcilePayment applies a gateway-reported state to the booking behind sessionID. Replays return
// the settled booking unchanged.
func (a *Arbiter) ReconcilePayment(ctx context.Context, sessionID string, state payment.GatewayState) (*models.Booking, error) {
	if sessionID == "" {
		return nil, models.NewValidationError("sessionId", "is required")
	}
	if !state.IsValid() {
		return nil, models.NewValidationError("state", fmt.Sprintf("unknown gateway state %q", state))
	}
	b, err := a.bookings.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	status, ok := payment.MapState(state)
	if !ok {
		return b, nil
	}
	out, err := a.engine.ApplyPayment(ctx, b.ID, status)
	if err != nil {
		return nil, err
	}
	if out.Changed {
		a.logger.Info("payment reconciled",
			zap.String("bookingID", b.ID),
			zap.String("sessionID", sessionID),
			zap.String("gatewayState", string(state)),
			zap.String("paymentStatus", string(out.Booking.Payment.Status)))
	}
	if out.RefundDue {
		return a.refund(ctx, out.Booking)
	}
	return out.Booking, nil
}

// ReconcileSession polls the gateway and reconciles whatever it reports.
func (a *Arbiter) ReconcileSession(ctx context.Context, sessionID string) (*models.Booking, payment.GatewayState, error) {
	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	defer cancel()
	state, err := a.gateway.QueryStatus(gctx, sessionID)
	if err != nil {
		return nil, "", payment.Classify(payment.OpQueryStatus, err)
	}
	b, err := a.ReconcilePayment(ctx, sessionID, state)
	if err != nil {
		return nil, state, err
	}
	return b, state, nil
}

// RetryPaymentSession reopens checkout for a pending booking whose session could not be created.
// The gateway idempotency key makes this safe to repeat.
func (a *Arbiter) RetryPaymentSession(ctx context.Context, principal models.Principal, bookingID string) (*CreateResult, error) {
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequesterID != principal.ID {
		return nil, &models.ForbiddenError{ActorID: principal.ID, BookingID: bookingID, Action: "pay for"}
	}
	if b.Status != models.BookingPending || b.Payment.Status != models.PaymentPending {
		return nil, &models.TransitionError{
			BookingID: b.ID, From: b.Status, To: b.Status,
			Reason: "checkout is only available for unpaid pending bookings",
		}
	}

	session, err := a.openSession(ctx, b)
	if err != nil {
		return nil, err
	}
	attached, err := a.engine.AttachSession(ctx, b.ID, session.SessionID)
	if err != nil {
		return nil, err
	}
	a.schedulePoll(ctx, attached.ID, session.SessionID)
	return &CreateResult{Booking: attached, PaymentSession: session}, nil
}

func (a *Arbiter) refund(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	if b.Payment.SessionID == "" {
		return b, nil
	}
	if _, busy := a.refunding.LoadOrStore(b.ID, struct{}{}); busy {
		return b, nil
	}
	defer a.refunding.Delete(b.ID)

	current, err := a.bookings.GetByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if current.Payment.Status == models.PaymentRefunded {
		return current, nil
	}

	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	defer cancel()
	if err := a.gateway.Refund(gctx, b.Payment.SessionID); err != nil {
		a.logger.Error("refund failed, will retry on next reconciliation",
			zap.String("bookingID", b.ID), zap.String("sessionID", b.Payment.SessionID), zap.Error(err))
		return nil, payment.Classify(payment.OpRefund, err)
	}
	refunded, err := a.engine.MarkRefunded(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("refund issued but not recorded for booking %s: %w", b.ID, err)
	}
	a.logger.Info("payment refunded", zap.String("bookingID", b.ID), zap.Float64("amount", b.Payment.Amount))
	return refunded, nil
}

// expireSession closes an unpaid checkout so the customer cannot pay for a cancelled booking.
func (a *Arbiter) expireSession(ctx context.Context, b *models.Booking) {
	if b.Payment.SessionID == "" || b.Payment.Status != models.PaymentPending {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	defer cancel()
	if err := a.gateway.ExpireSession(gctx, b.Payment.SessionID); err != nil {
		a.logger.Warn("failed to expire checkout session",
			zap.String("bookingID", b.ID), zap.String("sessionID", b.Payment.SessionID), zap.Error(err))
	}
}
