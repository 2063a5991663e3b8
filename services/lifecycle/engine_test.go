package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	reservationRepo "escrowbook/database/repository/reservation"
	"escrowbook/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.TransitionEvent
	err    error
}

func (n *recordingNotifier) Publish(ctx context.Context, ev models.TransitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) statuses() []models.BookingStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.BookingStatus, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.NewStatus)
	}
	return out
}

var start = time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *Engine
	repo     *reservationRepo.MemoryReservationRepo
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     reservationRepo.NewMemoryReservationRepo(),
		notifier: &recordingNotifier{},
		now:      start.Add(-24 * time.Hour),
	}
	f.engine = NewEngine(f.repo, f.notifier, zap.NewNop())
	f.engine.Clock = func() time.Time { return f.now }
	return f
}

func (f *fixture) open(t *testing.T, id string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID:                 id,
		RequesterID:        "user-1",
		ProviderID:         "prov-1",
		StartTime:          start,
		EndTime:            start.Add(2 * time.Hour),
		DisputeWindowHours: 48,
		TotalAmount:        40,
		Payment:            models.Payment{Method: models.MethodCard, Amount: 40, Currency: models.CurrencyUSD},
	}
	require.NoError(t, f.engine.Open(context.Background(), b, 0))
	return b
}

func (f *fixture) reservationState(t *testing.T, id string) reservationRepo.ReservationState {
	t.Helper()
	res, err := f.repo.GetReservation(context.Background(), id)
	require.NoError(t, err)
	return res.State
}

func TestTransitionTables(t *testing.T) {
	assert.True(t, CanTransition(models.BookingPending, models.BookingConfirmed))
	assert.True(t, CanTransition(models.BookingConfirmed, models.BookingDisputed))
	assert.False(t, CanTransition(models.BookingCompleted, models.BookingConfirmed))
	assert.False(t, CanTransition(models.BookingPending, models.BookingCompleted))
	assert.True(t, IsTerminal(models.BookingCancelled))
	assert.False(t, IsTerminal(models.BookingDisputed))

	assert.True(t, CanTransitionPayment(models.PaymentFailed, models.PaymentSucceeded))
	assert.False(t, CanTransitionPayment(models.PaymentRefunded, models.PaymentSucceeded))
}

func TestOpen_SetsPendingState(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, "b1")
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, models.PaymentPending, b.Payment.Status)
	assert.Equal(t, f.now, b.CreatedAt)
	assert.Equal(t, reservationRepo.ReservationHeld, f.reservationState(t, "b1"))

	f.engine.Announce(b)
	f.engine.Wait()
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.BookingStatus(""), f.notifier.events[0].OldStatus)
	assert.Equal(t, models.BookingPending, f.notifier.events[0].NewStatus)
}

func TestApplyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("paid confirms once", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")

		out, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.Equal(t, models.BookingConfirmed, out.Booking.Status)

		again, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		assert.False(t, again.Changed)
		assert.Equal(t, models.BookingConfirmed, again.Booking.Status)

		f.engine.Wait()
		assert.Equal(t, []models.BookingStatus{models.BookingConfirmed}, f.notifier.statuses())
	})

	t.Run("failed cancels and releases", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")

		out, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentFailed)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCancelled, out.Booking.Status)
		assert.NotNil(t, out.Booking.CancelledAt)
		assert.False(t, out.RefundDue)
		assert.Equal(t, reservationRepo.ReservationReleased, f.reservationState(t, "b1"))
	})

	t.Run("failure cancels a self-confirmed unpaid booking", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.Confirm(ctx, "b1", "prov-1", true)
		require.NoError(t, err)

		out, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentFailed)
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.Equal(t, models.BookingCancelled, out.Booking.Status)
		assert.Equal(t, models.PaymentFailed, out.Booking.Payment.Status)
		assert.Equal(t, "payment failed", out.Booking.CancelReason)
		assert.False(t, out.RefundDue)
		assert.Equal(t, reservationRepo.ReservationReleased, f.reservationState(t, "b1"))
	})

	t.Run("late success after cancel flags refund", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.Cancel(ctx, "b1", models.Principal{ID: "user-1", Role: models.RoleUser}, "changed plans")
		require.NoError(t, err)

		out, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.True(t, out.RefundDue)
		assert.Equal(t, models.BookingCancelled, out.Booking.Status)
		assert.Equal(t, models.PaymentSucceeded, out.Booking.Payment.Status)

		_, err = f.engine.MarkRefunded(ctx, "b1")
		require.NoError(t, err)
		replay, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		assert.False(t, replay.Changed)
		assert.False(t, replay.RefundDue)
	})

	t.Run("held then succeeded keeps confirmed", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentHeld)
		require.NoError(t, err)
		out, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.Equal(t, models.BookingConfirmed, out.Booking.Status)
	})

	t.Run("stale failure after success is ignored", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		out, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentFailed)
		require.NoError(t, err)
		assert.False(t, out.Changed)
		assert.Equal(t, models.BookingConfirmed, out.Booking.Status)
	})

	t.Run("rejects non gateway statuses", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentReleased)
		assert.True(t, models.IsValidation(err))
	})
}

func TestAttachSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t, "b1")

	b, err := f.engine.AttachSession(ctx, "b1", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", b.Payment.SessionID)

	bySession, err := f.repo.GetBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "b1", bySession.ID)

	_, err = f.engine.ApplyPayment(ctx, "b1", models.PaymentFailed)
	require.NoError(t, err)
	_, err = f.engine.AttachSession(ctx, "b1", "cs_2")
	assert.True(t, models.IsTransition(err))
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong provider", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.Confirm(ctx, "b1", "prov-2", false)
		assert.True(t, models.IsForbidden(err))
	})

	t.Run("unpaid needs policy", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.Confirm(ctx, "b1", "prov-1", false)
		var te *models.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "payment not settled", te.Reason)

		b, err := f.engine.Confirm(ctx, "b1", "prov-1", true)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, b.Status)
	})

	t.Run("completed booking is not coerced", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		f.now = start.Add(3 * time.Hour)
		_, err = f.engine.Complete(ctx, "b1", models.Principal{ID: "prov-1", Role: models.RoleProvider})
		require.NoError(t, err)

		_, err = f.engine.Confirm(ctx, "b1", "prov-1", false)
		assert.True(t, models.IsTransition(err))
		got, err := f.repo.GetByID(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, models.BookingCompleted, got.Status)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("stranger is forbidden", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.Cancel(ctx, "b1", models.Principal{ID: "user-9", Role: models.RoleUser}, "")
		assert.True(t, models.IsForbidden(err))
	})

	t.Run("provider cancels paid booking", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)

		out, err := f.engine.Cancel(ctx, "b1", models.Principal{ID: "prov-1", Role: models.RoleProvider}, "sick")
		require.NoError(t, err)
		assert.True(t, out.RefundDue)
		assert.Equal(t, "sick", out.Booking.CancelReason)
		assert.Equal(t, reservationRepo.ReservationReleased, f.reservationState(t, "b1"))

		_, err = f.engine.Cancel(ctx, "b1", models.Principal{ID: "prov-1", Role: models.RoleProvider}, "again")
		assert.True(t, models.IsTransition(err))
	})

	t.Run("cancel frees the interval", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.Cancel(ctx, "b1", models.Principal{ID: "admin", Role: models.RoleAdmin}, "")
		require.NoError(t, err)
		f.open(t, "b2")
	})
}

func TestCompleteAndDispute(t *testing.T) {
	ctx := context.Background()
	provider := models.Principal{ID: "prov-1", Role: models.RoleProvider}

	paid := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.open(t, "b1")
		_, err := f.engine.ApplyPayment(ctx, "b1", models.PaymentSucceeded)
		require.NoError(t, err)
		return f
	}

	t.Run("provider waits for end", func(t *testing.T) {
		f := paid(t)
		f.now = start.Add(time.Hour)
		_, err := f.engine.Complete(ctx, "b1", provider)
		assert.True(t, models.IsTransition(err))

		f.now = start.Add(2 * time.Hour)
		b, err := f.engine.Complete(ctx, "b1", provider)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCompleted, b.Status)
		assert.Equal(t, models.PaymentReleased, b.Payment.Status)
		assert.NotNil(t, b.CompletedAt)
	})

	t.Run("system waits for dispute window", func(t *testing.T) {
		f := paid(t)
		f.now = start.Add(49 * time.Hour)
		_, err := f.engine.Complete(ctx, "b1", models.SystemPrincipal)
		assert.True(t, models.IsTransition(err))

		f.now = start.Add(50 * time.Hour)
		b, err := f.engine.Complete(ctx, "b1", models.SystemPrincipal)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCompleted, b.Status)
	})

	t.Run("requester disputes inside window", func(t *testing.T) {
		f := paid(t)
		f.now = start.Add(3 * time.Hour)
		_, err := f.engine.Dispute(ctx, "b1", "prov-1", "no show")
		assert.True(t, models.IsForbidden(err))
		_, err = f.engine.Dispute(ctx, "b1", "user-1", " ")
		assert.True(t, models.IsValidation(err))

		b, err := f.engine.Dispute(ctx, "b1", "user-1", "no show")
		require.NoError(t, err)
		assert.Equal(t, models.BookingDisputed, b.Status)

		_, err = f.engine.Complete(ctx, "b1", provider)
		assert.True(t, models.IsTransition(err))
	})

	t.Run("dispute window closed", func(t *testing.T) {
		f := paid(t)
		f.now = start.Add(50 * time.Hour)
		_, err := f.engine.Dispute(ctx, "b1", "user-1", "late")
		var te *models.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "dispute window closed", te.Reason)
	})

	t.Run("admin resolves for requester", func(t *testing.T) {
		f := paid(t)
		f.now = start.Add(3 * time.Hour)
		_, err := f.engine.Dispute(ctx, "b1", "user-1", "no show")
		require.NoError(t, err)

		_, err = f.engine.ResolveDispute(ctx, "b1", models.BookingCancelled, provider)
		assert.True(t, models.IsForbidden(err))
		_, err = f.engine.ResolveDispute(ctx, "b1", models.BookingPending, models.Principal{ID: "a", Role: models.RoleAdmin})
		assert.True(t, models.IsValidation(err))

		out, err := f.engine.ResolveDispute(ctx, "b1", models.BookingCancelled, models.Principal{ID: "a", Role: models.RoleAdmin})
		require.NoError(t, err)
		assert.True(t, out.RefundDue)
		assert.Equal(t, models.BookingCancelled, out.Booking.Status)
	})
}

func TestPublishFailureIsLoggedOnly(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("queue down")
	f.open(t, "b1")

	out, err := f.engine.ApplyPayment(context.Background(), "b1", models.PaymentSucceeded)
	require.NoError(t, err)
	f.engine.Wait()
	assert.Equal(t, models.BookingConfirmed, out.Booking.Status)
	assert.Len(t, f.notifier.events, 1)
}
