package routes

import (
	"escrowbook/handlers"
	"escrowbook/middleware"
	"escrowbook/models"

	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes registers all endpoints for the booking arbiter.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	requester := middleware.RequireRole(models.RoleUser)
	providerOnly := middleware.RequireRole(models.RoleProvider)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	booking := r.Group("/api/bookings")
	booking.Use(middleware.JWTAuthMiddleware())
	{
		booking.POST("", requester, hb.CreateBooking)
		booking.GET("/me", requester, hb.ListMyBookings)
		booking.GET("/provider", providerOnly, hb.ListProviderBookings)
		booking.GET("/verify/:sessionId", hb.VerifyPayment)
		booking.GET("/:id", hb.GetBooking)
		booking.POST("/:id/payment", requester, hb.RetryPayment)

		booking.PATCH("/:id/confirm", providerOnly, hb.ConfirmBooking)
		booking.PATCH("/:id/cancel", hb.CancelBooking)
		booking.PATCH("/:id/complete", providerOnly, hb.CompleteBooking)
		booking.PATCH("/:id/dispute", requester, hb.DisputeBooking)
		booking.PATCH("/:id/resolve", adminOnly, hb.ResolveDispute)
	}
}
