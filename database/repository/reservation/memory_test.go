package reservationRepo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowbook/models"
)

func at(hh, mm int) time.Time {
	return time.Date(2030, time.March, 4, hh, mm, 0, 0, time.UTC)
}

func newBooking(id, providerID string, start, end time.Time) *models.Booking {
	return &models.Booking{
		ID:          id,
		RequesterID: "user-1",
		ProviderID:  providerID,
		StartTime:   start,
		EndTime:     end,
		Status:      models.BookingPending,
		Payment:     models.Payment{Status: models.PaymentPending},
		CreatedAt:   at(0, 0),
	}
}

func TestTryReserve_BufferEnforcement(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepo()
	buffer := 2 * time.Hour

	require.NoError(t, repo.TryReserve(ctx, newBooking("b-existing", "p1", at(10, 0), at(12, 0)), buffer))

	err := repo.TryReserve(ctx, newBooking("b-noon", "p1", at(12, 0), at(13, 0)), buffer)
	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "b-existing", conflict.BookingID)
	assert.Equal(t, at(10, 0), conflict.Start)
	assert.Equal(t, at(12, 0), conflict.End)
	assert.Equal(t, 2, conflict.BufferHours)

	err = repo.TryReserve(ctx, newBooking("b-two", "p1", at(14, 0), at(15, 0)), buffer)
	assert.True(t, models.IsConflict(err))

	assert.NoError(t, repo.TryReserve(ctx, newBooking("b-late", "p1", at(14, 1), at(15, 0)), buffer))

	// Other providers are unaffected.
	assert.NoError(t, repo.TryReserve(ctx, newBooking("b-other", "p2", at(10, 0), at(12, 0)), buffer))
}

func TestTryReserve_ConcurrentOverlapsAdmitExactlyOne(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepo()

	const workers = 32
	var wg sync.WaitGroup
	var wins, conflicts int32
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// Staggered by a few minutes so every pair still overlaps.
			b := newBooking(fmt.Sprintf("b-%d", i), "p1", at(9, i%5), at(10, i%5))
			err := repo.TryReserve(ctx, b, time.Hour)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case models.IsConflict(err):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, workers-1, conflicts)
}

func TestRelease_IsIdempotentAndFreesTheSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepo()
	require.NoError(t, repo.TryReserve(ctx, newBooking("b1", "p1", at(9, 0), at(10, 0)), 0))

	released, err := repo.Release(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = repo.Release(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, released, "second release must be a no-op")

	res, err := repo.GetReservation(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, ReservationReleased, res.State)
	assert.NotNil(t, res.ReleasedAt)

	assert.NoError(t, repo.TryReserve(ctx, newBooking("b2", "p1", at(9, 0), at(10, 0)), 0))

	_, err = repo.Release(ctx, "missing")
	assert.True(t, models.IsNotFound(err))
}

func TestMutate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepo()
	require.NoError(t, repo.TryReserve(ctx, newBooking("b1", "p1", at(9, 0), at(10, 0)), 0))

	t.Run("no change leaves state", func(t *testing.T) {
		b, err := repo.Mutate(ctx, "b1", func(b *models.Booking) (Effect, error) {
			b.Notes = "ignored"
			return NoChange, nil
		})
		require.NoError(t, err)
		assert.Empty(t, b.Notes)
	})

	t.Run("error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := repo.Mutate(ctx, "b1", func(b *models.Booking) (Effect, error) {
			b.Status = models.BookingCancelled
			return Save, boom
		})
		assert.ErrorIs(t, err, boom)
		got, _ := repo.GetByID(ctx, "b1")
		assert.Equal(t, models.BookingPending, got.Status)
	})

	t.Run("save indexes the session", func(t *testing.T) {
		_, err := repo.Mutate(ctx, "b1", func(b *models.Booking) (Effect, error) {
			b.Payment.SessionID = "cs_1"
			return Save, nil
		})
		require.NoError(t, err)
		got, err := repo.GetBySessionID(ctx, "cs_1")
		require.NoError(t, err)
		assert.Equal(t, "b1", got.ID)
	})

	t.Run("save and release frees the interval", func(t *testing.T) {
		_, err := repo.Mutate(ctx, "b1", func(b *models.Booking) (Effect, error) {
			b.Status = models.BookingCancelled
			return SaveAndRelease, nil
		})
		require.NoError(t, err)
		res, _ := repo.GetReservation(ctx, "b1")
		assert.Equal(t, ReservationReleased, res.State)

		released, err := repo.Release(ctx, "b1")
		require.NoError(t, err)
		assert.False(t, released)
	})
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepo()
	require.NoError(t, repo.TryReserve(ctx, newBooking("b1", "p1", at(9, 0), at(10, 0)), 0))

	require.NoError(t, repo.Discard(ctx, "b1"))
	_, err := repo.GetByID(ctx, "b1")
	assert.True(t, models.IsNotFound(err))
	assert.NoError(t, repo.TryReserve(ctx, newBooking("b2", "p1", at(9, 0), at(10, 0)), 0))

	_, err = repo.Mutate(ctx, "b2", func(b *models.Booking) (Effect, error) {
		b.Status = models.BookingConfirmed
		return Save, nil
	})
	require.NoError(t, err)
	assert.Error(t, repo.Discard(ctx, "b2"), "only pending bookings can be discarded")
}

func TestListQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepo()
	require.NoError(t, repo.TryReserve(ctx, newBooking("b2", "p1", at(13, 0), at(14, 0)), 0))
	require.NoError(t, repo.TryReserve(ctx, newBooking("b1", "p1", at(9, 0), at(10, 0)), 0))
	require.NoError(t, repo.TryReserve(ctx, newBooking("b3", "p2", at(9, 0), at(10, 0)), 0))
	_, err := repo.Mutate(ctx, "b2", func(b *models.Booking) (Effect, error) {
		b.Status = models.BookingConfirmed
		return Save, nil
	})
	require.NoError(t, err)

	all, err := repo.ListByProvider(ctx, "p1", models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b1", all[0].ID, "sorted by start time")

	confirmed, err := repo.ListByProvider(ctx, "p1", models.BookingFilter{Statuses: []models.BookingStatus{models.BookingConfirmed}})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "b2", confirmed[0].ID)

	mine, err := repo.ListByRequester(ctx, "user-1", models.BookingFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	ended, err := repo.ListByStatusBefore(ctx, models.BookingConfirmed, FieldEndTime, at(15, 0), 0)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, "b2", ended[0].ID)
}
