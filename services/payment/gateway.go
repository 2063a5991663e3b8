// Package payment adapts external payment gateways to the booking escrow flow.
package payment

import (
	"context"
	"errors"
	"math"
	"net"

	"github.com/stripe/stripe-go/v76"

	"escrowbook/models"
)

// GatewayState is the gateway-neutral state of a checkout session.
type GatewayState string

const (
	StateOpen    GatewayState = "open"
	StatePaid    GatewayState = "paid"
	StateHeld    GatewayState = "held"
	StateFailed  GatewayState = "failed"
	StateExpired GatewayState = "expired"
)

func (s GatewayState) IsValid() bool {
	switch s {
	case StateOpen, StatePaid, StateHeld, StateFailed, StateExpired:
		return true
	}
	return false
}

// MapState translates a gateway state into the payment status it implies. ok is false for states that
// carry no transition.
func MapState(s GatewayState) (models.PaymentStatus, bool) {
	switch s {
	case StatePaid:
		return models.PaymentSucceeded, true
	case StateHeld:
		return models.PaymentHeld, true
	case StateFailed, StateExpired:
		return models.PaymentFailed, true
	}
	return "", false
}

// Gateway is the escrow provider contract. Every call honours ctx and returns *models.GatewayError.
type Gateway interface {
	OpenSession(ctx context.Context, booking *models.Booking) (*models.PaymentSession, error)
	QueryStatus(ctx context.Context, sessionID string) (GatewayState, error)
	Refund(ctx context.Context, sessionID string) error
	ExpireSession(ctx context.Context, sessionID string) error
}

const (
	OpOpenSession   = "open_session"
	OpQueryStatus   = "query_status"
	OpRefund        = "refund"
	OpExpireSession = "expire_session"
)

// IdempotencyKey is stable per booking, so a retried checkout never creates a second session.
func IdempotencyKey(bookingID string) string {
	return "booking:" + bookingID + ":session"
}

// MinorUnits converts an amount to the smallest currency unit the gateway expects.
func MinorUnits(amount float64, currency models.Currency) int64 {
	if currency.ZeroDecimal() {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

// Classify wraps a raw gateway error into *models.GatewayError. Errors already classified pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *models.GatewayError
	if errors.As(err, &gerr) {
		return err
	}

	kind := models.GatewayUnavailable
	var netErr net.Error
	var stripeErr *stripe.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = models.GatewayTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = models.GatewayTimeout
	case errors.As(err, &stripeErr):
		code := stripeErr.HTTPStatusCode
		if code != 0 && code < 500 && code != 429 {
			kind = models.GatewayRejected
		}
	}
	return &models.GatewayError{Kind: kind, Op: op, Err: err}
}
