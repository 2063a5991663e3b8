package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowbook/models"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message  string        `json:"message"`
	Details  string        `json:"details,omitempty"`
	Field    string        `json:"field,omitempty"`
	Conflict *ConflictBody `json:"conflict,omitempty"`
	Booking  string        `json:"bookingId,omitempty"`
}

// ConflictBody names the window that blocked a reservation so the caller can pick another slot.
type ConflictBody struct {
	Reason      models.ConflictReason `json:"reason"`
	BookingID   string                `json:"bookingId,omitempty"`
	Start       time.Time             `json:"start"`
	End         time.Time             `json:"end"`
	BufferHours int                   `json:"bufferHours"`
}

// HandleErrors is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				Logger := GetLogger()
				Logger.Error("Unhandled panic", zap.Any("error", err))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, message string, details string) {
	Logger := GetLogger()
	Logger.Warn(message, zap.String("details", details))
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

// WriteError maps a domain error onto its HTTP status and body.
func WriteError(c *gin.Context, err error) {
	var (
		validation *models.ValidationError
		conflict   *models.ConflictError
		notFound   *models.NotFoundError
		forbidden  *models.ForbiddenError
		transition *models.TransitionError
		gateway    *models.GatewayError
		rollback   *models.RollbackError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request", Details: validation.Message, Field: validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Requested time is not available",
			Details: conflict.Error(),
			Conflict: &ConflictBody{
				Reason:      conflict.Reason,
				BookingID:   conflict.BookingID,
				Start:       conflict.Start,
				End:         conflict.End,
				BufferHours: conflict.BufferHours,
			},
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Not found", Details: notFound.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "Forbidden", Details: forbidden.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Invalid booking transition", Details: transition.Error(), Booking: transition.BookingID})
	case errors.As(err, &rollback):
		GetLogger().Error("booking rollback failed, operator action required",
			zap.String("bookingID", rollback.BookingID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal Server Error", Details: "booking could not be rolled back"})
	case errors.As(err, &gateway):
		status := http.StatusBadGateway
		switch gateway.Kind {
		case models.GatewayTimeout:
			status = http.StatusGatewayTimeout
		case models.GatewayUnavailable:
			status = http.StatusServiceUnavailable
		}
		if gateway.BookingID != "" {
			c.Header("X-Booking-ID", gateway.BookingID)
		}
		JSONError(c, status, "Payment gateway error", gateway.Error())
	default:
		GetLogger().Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal Server Error"})
	}
}
