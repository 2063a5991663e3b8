package notification

import (
	"context"

	"go.uber.org/zap"

	"escrowbook/models"
)

// Publish makes the FCM service usable as a direct Notifier.
func (s *DefaultNotificationService) Publish(ctx context.Context, ev models.TransitionEvent) error {
	return s.NotifyTransition(ctx, ev)
}

type transitionEnqueuer interface {
	EnqueueTransition(ctx context.Context, ev models.TransitionEvent) error
}

// QueueNotifier defers delivery to the background worker.
type QueueNotifier struct {
	queue transitionEnqueuer
}

func NewQueueNotifier(queue transitionEnqueuer) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) Publish(ctx context.Context, ev models.TransitionEvent) error {
	return n.queue.EnqueueTransition(ctx, ev)
}

// LogNotifier only records transitions. Used when push delivery is disabled.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, ev models.TransitionEvent) error {
	n.logger.Info("booking transition",
		zap.String("bookingID", ev.BookingID),
		zap.String("from", string(ev.OldStatus)),
		zap.String("to", string(ev.NewStatus)),
		zap.Time("at", ev.Timestamp),
	)
	return nil
}

// Fanout publishes to every notifier and returns the first error.
type Fanout []Notifier

func (f Fanout) Publish(ctx context.Context, ev models.TransitionEvent) error {
	var first error
	for _, n := range f {
		if err := n.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
