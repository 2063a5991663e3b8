package cron

import (
	"context"
	"fmt"
	"time"

	"escrowbook/models"
	"escrowbook/services/payment"
	"escrowbook/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const sweepBatch = 200

// BookingJobs is the part of the arbiter the worker drives.
type BookingJobs interface {
	ReconcileSession(ctx context.Context, sessionID string) (*models.Booking, payment.GatewayState, error)
	CompleteDue(ctx context.Context, limit int64) (int, error)
	ExpireStaleHolds(ctx context.Context, limit int64) (int, error)
}

// TransitionNotifier delivers a transition to both parties.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, ev models.TransitionEvent) error
}

// NewMux routes every background task type. notifier may be nil when push delivery is disabled.
func NewMux(jobs BookingJobs, notifier TransitionNotifier, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeBookingTransition, handleTransitionTask(notifier, logger))
	mux.HandleFunc(tasks.TypePaymentReconcile, handleReconcileTask(jobs, logger))
	mux.HandleFunc(tasks.TypeSweepCompletion, handleCompletionSweep(jobs, logger))
	mux.HandleFunc(tasks.TypeSweepHolds, handleHoldSweep(jobs, logger))
	return mux
}

// StartWorker runs the async worker in background and returns a stop function.
func StartWorker(redisOpts asynq.RedisClientOpt, mux *asynq.ServeMux, logger *zap.Logger) func() {
	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)

	go func() {
		logger.Info("starting background worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Start(mux)
			if err == nil {
				return
			}
			logger.Error("failed to start worker",
				zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Error("max worker start attempts reached; background tasks are not processed")
				return
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()

	return srv.Shutdown
}

// StartSweeps registers the periodic completion and hold-expiry sweeps.
func StartSweeps(redisOpts asynq.RedisClientOpt, interval time.Duration, logger *zap.Logger) (func(), error) {
	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Logger: logger.Sugar(), Location: time.UTC})
	if err := RegisterSweeps(scheduler, interval); err != nil {
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start sweep scheduler: %w", err)
	}
	return scheduler.Shutdown, nil
}

type periodicRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

func RegisterSweeps(s periodicRegistrar, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	spec := "@every " + interval.String()
	for _, typ := range []string{tasks.TypeSweepCompletion, tasks.TypeSweepHolds} {
		if _, err := s.Register(spec, tasks.NewSweepTask(typ), asynq.Unique(interval)); err != nil {
			return fmt.Errorf("failed to register %s: %w", typ, err)
		}
	}
	return nil
}

func handleTransitionTask(notifier TransitionNotifier, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		ev, err := tasks.ParseTransition(task)
		if err != nil {
			logger.Error("dropping transition task", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if notifier == nil {
			logger.Debug("push delivery disabled", zap.String("bookingID", ev.BookingID))
			return nil
		}
		if err := notifier.NotifyTransition(ctx, ev); err != nil {
			logger.Warn("failed to deliver transition",
				zap.String("bookingID", ev.BookingID), zap.String("to", string(ev.NewStatus)), zap.Error(err))
			return err
		}
		return nil
	}
}

func handleReconcileTask(jobs BookingJobs, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.ParseReconcile(task)
		if err != nil {
			logger.Error("dropping reconcile task", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		b, state, err := jobs.ReconcileSession(ctx, p.SessionID)
		switch {
		case models.IsNotFound(err):
			// Booking was rolled back before the session was attached.
			return nil
		case err != nil:
			return fmt.Errorf("reconcile session %s: %w", p.SessionID, err)
		}
		logger.Info("payment poll",
			zap.String("bookingID", b.ID),
			zap.String("sessionID", p.SessionID),
			zap.String("gatewayState", string(state)),
			zap.String("status", string(b.Status)))
		return nil
	}
}

func handleCompletionSweep(jobs BookingJobs, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := jobs.CompleteDue(ctx, sweepBatch)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("completion sweep", zap.Int("completed", n))
		}
		return nil
	}
}

func handleHoldSweep(jobs BookingJobs, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := jobs.ExpireStaleHolds(ctx, sweepBatch)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("hold sweep", zap.Int("expired", n))
		}
		return nil
	}
}

// MonitorRedisConnection pings the queue redis periodically to detect failures at runtime.
func MonitorRedisConnection(ctx context.Context, client *redis.Client, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("queue redis connection lost", zap.Error(err))
			}
		}
	}
}
