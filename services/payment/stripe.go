package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/refund"
	"go.uber.org/zap"

	"escrowbook/models"
)

type StripeConfig struct {
	SecretKey string
	ReturnURL string
}

// StripeGateway runs escrow checkouts as embedded Stripe Checkout sessions.
type StripeGateway struct {
	returnURL string
	logger    *zap.Logger
}

func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if cfg.ReturnURL == "" {
		return nil, fmt.Errorf("checkout return url is required")
	}
	stripe.Key = cfg.SecretKey
	return &StripeGateway{returnURL: cfg.ReturnURL, logger: logger}, nil
}

func (g *StripeGateway) OpenSession(ctx context.Context, b *models.Booking) (*models.PaymentSession, error) {
	currency := b.Payment.Currency
	params := &stripe.CheckoutSessionParams{
		UIMode:            stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ReturnURL:         stripe.String(g.returnURL),
		ClientReferenceID: stripe.String(b.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(string(currency))),
					UnitAmount: stripe.Int64(MinorUnits(b.TotalAmount, currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(productName(b)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey(b.ID))
	for k, v := range sessionMetadata(b) {
		params.AddMetadata(k, v)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, Classify(OpOpenSession, err)
	}
	g.logger.Info("stripe checkout session created", zap.String("bookingID", b.ID), zap.String("sessionID", s.ID))
	return &models.PaymentSession{SessionID: s.ID, ClientSecret: s.ClientSecret}, nil
}

func (g *StripeGateway) QueryStatus(ctx context.Context, sessionID string) (GatewayState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := session.Get(sessionID, params)
	if err != nil {
		return "", Classify(OpQueryStatus, err)
	}
	return sessionState(s), nil
}

func (g *StripeGateway) Refund(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	s, err := session.Get(sessionID, params)
	if err != nil {
		return Classify(OpRefund, err)
	}
	if s.PaymentIntent == nil || s.PaymentIntent.ID == "" {
		return &models.GatewayError{Kind: models.GatewayRejected, Op: OpRefund, Err: errors.New("session has no payment to refund")}
	}

	rp := &stripe.RefundParams{PaymentIntent: stripe.String(s.PaymentIntent.ID)}
	rp.Context = ctx
	rp.SetIdempotencyKey("session:" + sessionID + ":refund")
	if _, err := refund.New(rp); err != nil {
		return Classify(OpRefund, err)
	}
	g.logger.Info("stripe refund issued", zap.String("sessionID", sessionID), zap.String("paymentIntent", s.PaymentIntent.ID))
	return nil
}

func (g *StripeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := session.Expire(sessionID, params); err != nil {
		return Classify(OpExpireSession, err)
	}
	return nil
}

func sessionState(s *stripe.CheckoutSession) GatewayState {
	switch s.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return StatePaid
	}
	if s.Status == stripe.CheckoutSessionStatusExpired {
		return StateExpired
	}
	return StateOpen
}

func sessionMetadata(b *models.Booking) map[string]string {
	ids := make([]string, 0, len(b.Services))
	for _, s := range b.Services {
		ids = append(ids, s.ServiceID)
	}
	return map[string]string{
		"bookingId":  b.ID,
		"providerId": b.ProviderID,
		"serviceIds": strings.Join(ids, ","),
		"startTime":  b.StartTime.Format(time.RFC3339),
		"endTime":    b.EndTime.Format(time.RFC3339),
	}
}

func productName(b *models.Booking) string {
	names := make([]string, 0, len(b.Services))
	for _, s := range b.Services {
		names = append(names, s.Name)
	}
	if len(names) == 0 {
		return "Booking " + b.ID
	}
	return strings.Join(names, " + ")
}
