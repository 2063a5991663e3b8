// File: escrowbook/handlers/handlerBundle.go
package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Booking endpoints
	CreateBooking        gin.HandlerFunc
	ListMyBookings       gin.HandlerFunc
	ListProviderBookings gin.HandlerFunc
	GetBooking           gin.HandlerFunc
	RetryPayment         gin.HandlerFunc
	VerifyPayment        gin.HandlerFunc
	ConfirmBooking       gin.HandlerFunc
	CancelBooking        gin.HandlerFunc
	CompleteBooking      gin.HandlerFunc
	DisputeBooking       gin.HandlerFunc
	ResolveDispute       gin.HandlerFunc

	// Provider endpoints
	SetBookingBuffer gin.HandlerFunc

	// Gateway callbacks
	StripeWebhook gin.HandlerFunc

	Health gin.HandlerFunc
}

// NewHandlerBundle assembles the bundle from the booking and webhook handlers.
func NewHandlerBundle(bookings *BookingHandler, webhooks *WebhookHandler) *HandlerBundle {
	return &HandlerBundle{
		CreateBooking:        bookings.CreateBooking,
		ListMyBookings:       bookings.ListMyBookings,
		ListProviderBookings: bookings.ListProviderBookings,
		GetBooking:           bookings.GetBooking,
		RetryPayment:         bookings.RetryPayment,
		VerifyPayment:        bookings.VerifyPayment,
		ConfirmBooking:       bookings.ConfirmBooking,
		CancelBooking:        bookings.CancelBooking,
		CompleteBooking:      bookings.CompleteBooking,
		DisputeBooking:       bookings.DisputeBooking,
		ResolveDispute:       bookings.ResolveDispute,
		SetBookingBuffer:     bookings.SetBookingBuffer,
		StripeWebhook:        webhooks.StripeWebhook,
		Health:               Health,
	}
}
