package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookEvent is a verified gateway notification about one checkout session.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	BookingID string
	State     GatewayState
	// Actionable is false for event types that carry no payment transition.
	Actionable bool
}

type StripeWebhookVerifier struct {
	secret string
}

func NewStripeWebhookVerifier(secret string) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret}
}

// ParseWebhook checks the Stripe-Signature header and extracts the checkout session state.
func (v *StripeWebhookVerifier) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signature: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("error parsing checkout session: %w", err)
	}
	out.SessionID = s.ID
	out.BookingID = s.ClientReferenceID

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Delayed methods complete unpaid and settle through async_payment_* later.
		if sessionState(&s) == StatePaid {
			out.State, out.Actionable = StatePaid, true
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		out.State, out.Actionable = StatePaid, true
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		out.State, out.Actionable = StateFailed, true
	case stripe.EventTypeCheckoutSessionExpired:
		out.State, out.Actionable = StateExpired, true
	}
	return out, nil
}
