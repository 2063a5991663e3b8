package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowbook/middleware"
	"escrowbook/models"
	"escrowbook/services/arbiter"
	"escrowbook/services/payment"
	"escrowbook/utils"
)

// BookingService is the booking surface the HTTP layer needs. *arbiter.Arbiter implements it.
type BookingService interface {
	CreateBooking(ctx context.Context, principal models.Principal, req models.BookingRequest) (*arbiter.CreateResult, error)
	GetBooking(ctx context.Context, principal models.Principal, bookingID string) (*models.Booking, error)
	ListRequesterBookings(ctx context.Context, principal models.Principal, filter models.BookingFilter) ([]models.Booking, error)
	ListProviderBookings(ctx context.Context, principal models.Principal, filter models.BookingFilter) ([]models.Booking, error)
	RetryPaymentSession(ctx context.Context, principal models.Principal, bookingID string) (*arbiter.CreateResult, error)
	ReconcileSession(ctx context.Context, sessionID string) (*models.Booking, payment.GatewayState, error)
	ConfirmBooking(ctx context.Context, principal models.Principal, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, principal models.Principal, bookingID, reason string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, principal models.Principal, bookingID string) (*models.Booking, error)
	DisputeBooking(ctx context.Context, principal models.Principal, bookingID, reason string) (*models.Booking, error)
	ResolveDispute(ctx context.Context, principal models.Principal, bookingID string, outcome models.BookingStatus) (*models.Booking, error)
	SetBookingBuffer(ctx context.Context, principal models.Principal, hours int) (*models.Provider, error)
}

type BookingHandler struct {
	svc BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

type reasonInput struct {
	Reason string `json:"reason"`
}

type resolveInput struct {
	Outcome models.BookingStatus `json:"outcome" binding:"required"`
}

type bufferInput struct {
	BufferHours *int `json:"bufferHours" binding:"required"`
}

// CreateBooking reserves a slot and returns the booking with its checkout session.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var input models.BookingRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	res, err := h.svc.CreateBooking(c.Request.Context(), principal, input)
	if err != nil {
		getLogger(c).Info("booking rejected",
			zap.String("requesterID", principal.ID),
			zap.String("providerID", input.ProviderID),
			zap.Error(err))
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	b, err := h.svc.GetBooking(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	bookings, err := h.svc.ListRequesterBookings(c.Request.Context(), principal, filter)
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *BookingHandler) ListProviderBookings(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	bookings, err := h.svc.ListProviderBookings(c.Request.Context(), principal, filter)
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// RetryPayment reopens checkout for an unpaid pending booking.
func (h *BookingHandler) RetryPayment(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	res, err := h.svc.RetryPaymentSession(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// VerifyPayment asks the gateway for the session state and reconciles it.
func (h *BookingHandler) VerifyPayment(c *gin.Context) {
	sessionID := c.Param("sessionId")
	b, state, err := h.svc.ReconcileSession(c.Request.Context(), sessionID)
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookingId":     b.ID,
		"status":        b.Status,
		"paymentStatus": b.Payment.Status,
		"gatewayState":  state,
	})
}

func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	b, err := h.svc.ConfirmBooking(c.Request.Context(), principal, c.Param("id"))
	h.respond(c, b, err)
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var input reasonInput
	if !bindOptionalJSON(c, &input) {
		return
	}
	b, err := h.svc.CancelBooking(c.Request.Context(), principal, c.Param("id"), input.Reason)
	h.respond(c, b, err)
}

func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	b, err := h.svc.CompleteBooking(c.Request.Context(), principal, c.Param("id"))
	h.respond(c, b, err)
}

func (h *BookingHandler) DisputeBooking(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var input reasonInput
	if !bindOptionalJSON(c, &input) {
		return
	}
	b, err := h.svc.DisputeBooking(c.Request.Context(), principal, c.Param("id"), input.Reason)
	h.respond(c, b, err)
}

func (h *BookingHandler) ResolveDispute(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var input resolveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	b, err := h.svc.ResolveDispute(c.Request.Context(), principal, c.Param("id"), input.Outcome)
	h.respond(c, b, err)
}

// SetBookingBuffer updates the calling provider's buffer hours.
func (h *BookingHandler) SetBookingBuffer(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var input bufferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	p, err := h.svc.SetBookingBuffer(c.Request.Context(), principal, *input.BufferHours)
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providerId": p.ID, "bufferHours": p.EffectiveBufferHours()})
}

func (h *BookingHandler) respond(c *gin.Context, b *models.Booking, err error) {
	if err != nil {
		utils.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func requirePrincipal(c *gin.Context) (models.Principal, bool) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return models.Principal{}, false
	}
	return principal, true
}

// bindOptionalJSON binds the body when one was sent.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return false
	}
	return true
}

// parseFilter reads ?status=pending,confirmed&limit=20.
func parseFilter(c *gin.Context) (models.BookingFilter, error) {
	var filter models.BookingFilter
	for _, raw := range c.QueryArray("status") {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			status := models.BookingStatus(s)
			switch status {
			case models.BookingPending, models.BookingConfirmed, models.BookingCompleted,
				models.BookingCancelled, models.BookingDisputed:
				filter.Statuses = append(filter.Statuses, status)
			default:
				return filter, models.NewValidationError("status", "unknown status "+s)
			}
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			return filter, models.NewValidationError("limit", "must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}
