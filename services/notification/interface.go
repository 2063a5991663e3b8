package notification

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"escrowbook/models"
)

// Notifier receives lifecycle transition events. Delivery is fire-and-forget for the caller.
type Notifier interface {
	Publish(ctx context.Context, ev models.TransitionEvent) error
}

// NotificationService delivers pushes to the parties of a booking.
type NotificationService interface {
	SendUserPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error
	SendProviderPushNotification(ctx context.Context, providerID, title, body string, data map[string]string) error
	NotifyTransition(ctx context.Context, ev models.TransitionEvent) error
}

// messageSender is the subset of *messaging.Client used here.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// DefaultNotificationService pushes through FCM topics named user_<id> and provider_<id>.
type DefaultNotificationService struct {
	fcm    messageSender
	logger *zap.Logger
}

func NewDefaultNotificationService(fcm messageSender, logger *zap.Logger) (*DefaultNotificationService, error) {
	if fcm == nil {
		return nil, fmt.Errorf("notification service initialization error: fcm client is nil")
	}
	return &DefaultNotificationService{fcm: fcm, logger: logger}, nil
}

func UserTopic(userID string) string { return "user_" + userID }

func ProviderTopic(providerID string) string { return "provider_" + providerID }

func (s *DefaultNotificationService) SendUserPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error {
	if err := s.send(ctx, UserTopic(userID), title, body, withRole(data, "user")); err != nil {
		return fmt.Errorf("SendUserPushNotification: %w", err)
	}
	return nil
}

func (s *DefaultNotificationService) SendProviderPushNotification(ctx context.Context, providerID, title, body string, data map[string]string) error {
	if err := s.send(ctx, ProviderTopic(providerID), title, body, withRole(data, "provider")); err != nil {
		return fmt.Errorf("SendProviderPushNotification: %w", err)
	}
	return nil
}

// NotifyTransition tells both parties about a status change. Both pushes are attempted.
func (s *DefaultNotificationService) NotifyTransition(ctx context.Context, ev models.TransitionEvent) error {
	title, body := describe(ev)
	data := map[string]string{
		"type":      "booking_transition",
		"bookingId": ev.BookingID,
		"oldStatus": string(ev.OldStatus),
		"newStatus": string(ev.NewStatus),
	}

	userErr := s.SendUserPushNotification(ctx, ev.RequesterID, title, body, copyData(data))
	providerErr := s.SendProviderPushNotification(ctx, ev.ProviderID, title, body, copyData(data))
	if userErr != nil {
		return userErr
	}
	return providerErr
}

func (s *DefaultNotificationService) send(ctx context.Context, topic, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "bookings",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}

	id, err := s.fcm.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM message to %s: %w", topic, err)
	}
	if s.logger != nil {
		s.logger.Debug("push sent", zap.String("topic", topic), zap.String("messageID", id))
	}
	return nil
}

func describe(ev models.TransitionEvent) (string, string) {
	switch ev.NewStatus {
	case models.BookingPending:
		return "Booking requested", fmt.Sprintf("Booking %s is awaiting payment.", ev.BookingID)
	case models.BookingConfirmed:
		return "Booking confirmed", fmt.Sprintf("Booking %s is confirmed.", ev.BookingID)
	case models.BookingCancelled:
		return "Booking cancelled", fmt.Sprintf("Booking %s was cancelled.", ev.BookingID)
	case models.BookingCompleted:
		return "Booking completed", fmt.Sprintf("Booking %s is complete. Funds have been released.", ev.BookingID)
	case models.BookingDisputed:
		return "Booking disputed", fmt.Sprintf("A dispute was opened on booking %s.", ev.BookingID)
	}
	return "Booking updated", fmt.Sprintf("Booking %s is now %s.", ev.BookingID, ev.NewStatus)
}

func withRole(data map[string]string, role string) map[string]string {
	if data == nil {
		data = map[string]string{}
	}
	if _, ok := data["role"]; !ok {
		data["role"] = role
	}
	return data
}

func copyData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
