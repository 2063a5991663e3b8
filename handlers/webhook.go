package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowbook/models"
	"escrowbook/services/payment"
	"escrowbook/utils"
)

const maxWebhookBody = int64(65536)

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// EventDeduper remembers which gateway events were already applied.
type EventDeduper interface {
	FirstDelivery(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type PaymentReconciler interface {
	ReconcilePayment(ctx context.Context, sessionID string, state payment.GatewayState) (*models.Booking, error)
}

type WebhookHandler struct {
	parser     WebhookParser
	deduper    EventDeduper
	reconciler PaymentReconciler
}

// NewWebhookHandler wires the Stripe webhook endpoint. deduper may be nil when redis is not configured;
// reconciliation is idempotent either way.
func NewWebhookHandler(parser WebhookParser, deduper EventDeduper, reconciler PaymentReconciler) *WebhookHandler {
	return &WebhookHandler{parser: parser, deduper: deduper, reconciler: reconciler}
}

// StripeWebhook verifies and applies a checkout session event.
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	logger := getLogger(c)
	ctx := c.Request.Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusServiceUnavailable, "Error reading request body", err.Error())
		return
	}

	event, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid webhook", err.Error())
		return
	}
	if !event.Actionable {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if h.deduper != nil {
		first, err := h.deduper.FirstDelivery(ctx, event.ID)
		if err != nil {
			logger.Warn("webhook dedupe unavailable, applying event anyway", zap.String("eventID", event.ID), zap.Error(err))
		} else if !first {
			c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
			return
		}
	}

	b, err := h.reconciler.ReconcilePayment(ctx, event.SessionID, event.State)
	if err != nil {
		if models.IsNotFound(err) {
			logger.Warn("webhook for unknown checkout session",
				zap.String("eventID", event.ID), zap.String("sessionID", event.SessionID))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		if h.deduper != nil {
			if ferr := h.deduper.Forget(ctx, event.ID); ferr != nil {
				logger.Warn("failed to clear webhook dedupe key", zap.String("eventID", event.ID), zap.Error(ferr))
			}
		}
		logger.Error("webhook reconciliation failed",
			zap.String("eventID", event.ID), zap.String("sessionID", event.SessionID), zap.Error(err))
		utils.WriteError(c, err)
		return
	}

	logger.Info("webhook applied",
		zap.String("eventID", event.ID),
		zap.String("type", event.Type),
		zap.String("bookingID", b.ID),
		zap.String("status", string(b.Status)))
	c.JSON(http.StatusOK, gin.H{"received": true, "bookingId": b.ID, "status": b.Status})
}
