package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"escrowbook/models"
)

const (
	TypeBookingTransition = "booking:transition"
	TypePaymentReconcile  = "payment:reconcile"
	TypeSweepCompletion   = "sweep:completion"
	TypeSweepHolds        = "sweep:holds"
)

// ReconcilePayload asks the worker to poll the gateway for one checkout session.
type ReconcilePayload struct {
	BookingID string `json:"bookingId"`
	SessionID string `json:"sessionId"`
}

func NewTransitionTask(ev models.TransitionEvent) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBookingTransition, b)
	opts := []asynq.Option{asynq.MaxRetry(5), asynq.Timeout(30 * time.Second)}
	return task, opts, nil
}

func NewReconcileTask(payload ReconcilePayload, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypePaymentReconcile, b)
	opts := []asynq.Option{
		asynq.ProcessIn(delay),
		asynq.TaskID("reconcile:" + payload.SessionID),
		asynq.MaxRetry(10),
	}
	return task, opts, nil
}

// NewSweepTask builds a payload-less periodic task.
func NewSweepTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, nil)
}

func ParseTransition(task *asynq.Task) (models.TransitionEvent, error) {
	var ev models.TransitionEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("invalid transition payload: %w", err)
	}
	return ev, nil
}

func ParseReconcile(task *asynq.Task) (ReconcilePayload, error) {
	var p ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid reconcile payload: %w", err)
	}
	if p.SessionID == "" {
		return p, errors.New("invalid reconcile payload: missing sessionId")
	}
	return p, nil
}

// Enqueuer schedules background work on the asynq queue.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// SchedulePaymentCheck enqueues a delayed gateway poll. A poll already queued for the session is kept.
func (e *Enqueuer) SchedulePaymentCheck(ctx context.Context, bookingID, sessionID string, delay time.Duration) error {
	task, opts, err := NewReconcileTask(ReconcilePayload{BookingID: bookingID, SessionID: sessionID}, delay)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue payment check for %s: %w", sessionID, err)
	}
	return nil
}

// EnqueueTransition hands a lifecycle event to the notification worker.
func (e *Enqueuer) EnqueueTransition(ctx context.Context, ev models.TransitionEvent) error {
	task, opts, err := NewTransitionTask(ev)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue transition for %s: %w", ev.BookingID, err)
	}
	return nil
}
