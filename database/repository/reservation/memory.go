package reservationRepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escrowbook/models"
	"escrowbook/services/interval"
)

// MemoryReservationRepo keeps bookings in process. A mutex per provider serializes check-then-act, so
// providers never wait on each other.
type MemoryReservationRepo struct {
	mu           sync.RWMutex
	bookings     map[string]models.Booking
	reservations map[string]Reservation
	sessions     map[string]string

	providerLocks sync.Map // providerID -> *sync.Mutex
	now           func() time.Time
}

func NewMemoryReservationRepo() *MemoryReservationRepo {
	return &MemoryReservationRepo{
		bookings:     make(map[string]models.Booking),
		reservations: make(map[string]Reservation),
		sessions:     make(map[string]string),
		now:          time.Now,
	}
}

func (r *MemoryReservationRepo) lockProvider(providerID string) func() {
	l, _ := r.providerLocks.LoadOrStore(providerID, &sync.Mutex{})
	m := l.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (r *MemoryReservationRepo) TryReserve(ctx context.Context, b *models.Booking, buffer time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.lockProvider(b.ProviderID)
	defer unlock()

	r.mu.RLock()
	_, exists := r.bookings[b.ID]
	var conflict *models.ConflictError
	for _, res := range r.reservations {
		if res.ProviderID != b.ProviderID || res.State != ReservationHeld {
			continue
		}
		if interval.Conflicts(res.StartTime, res.EndTime, b.StartTime, b.EndTime, buffer) {
			conflict = conflictFor(res, buffer)
			break
		}
	}
	r.mu.RUnlock()

	if exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	if conflict != nil {
		return conflict
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservations[b.ID] = Reservation{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		State:      ReservationHeld,
		CreatedAt:  r.now(),
	}
	r.bookings[b.ID] = b.Clone()
	if b.Payment.SessionID != "" {
		r.sessions[b.Payment.SessionID] = b.ID
	}
	return nil
}

func (r *MemoryReservationRepo) providerOf(bookingID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return "", models.NewNotFoundError("booking", bookingID)
	}
	return b.ProviderID, nil
}

func (r *MemoryReservationRepo) Release(ctx context.Context, bookingID string) (bool, error) {
	providerID, err := r.providerOf(bookingID)
	if err != nil {
		return false, err
	}
	unlock := r.lockProvider(providerID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(bookingID), nil
}

func (r *MemoryReservationRepo) releaseLocked(bookingID string) bool {
	res, ok := r.reservations[bookingID]
	if !ok || res.State != ReservationHeld {
		return false
	}
	now := r.now()
	res.State = ReservationReleased
	res.ReleasedAt = &now
	r.reservations[bookingID] = res
	return true
}

func (r *MemoryReservationRepo) Discard(ctx context.Context, bookingID string) error {
	providerID, err := r.providerOf(bookingID)
	if err != nil {
		return err
	}
	unlock := r.lockProvider(providerID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return models.NewNotFoundError("booking", bookingID)
	}
	if b.Status != models.BookingPending {
		return fmt.Errorf("discard booking %s: status is %s", bookingID, b.Status)
	}
	delete(r.bookings, bookingID)
	delete(r.reservations, bookingID)
	if b.Payment.SessionID != "" {
		delete(r.sessions, b.Payment.SessionID)
	}
	return nil
}

func (r *MemoryReservationRepo) Mutate(ctx context.Context, bookingID string, fn MutateFunc) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	providerID, err := r.providerOf(bookingID)
	if err != nil {
		return nil, err
	}
	unlock := r.lockProvider(providerID)
	defer unlock()

	r.mu.RLock()
	current, ok := r.bookings[bookingID]
	r.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFoundError("booking", bookingID)
	}

	working := current.Clone()
	effect, err := fn(&working)
	if err != nil {
		return nil, err
	}
	if effect == NoChange {
		return &current, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if current.Payment.SessionID != working.Payment.SessionID {
		delete(r.sessions, current.Payment.SessionID)
		if working.Payment.SessionID != "" {
			r.sessions[working.Payment.SessionID] = bookingID
		}
	}
	r.bookings[bookingID] = working.Clone()
	if effect == SaveAndRelease {
		r.releaseLocked(bookingID)
	}
	return &working, nil
}

func (r *MemoryReservationRepo) GetByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, models.NewNotFoundError("booking", bookingID)
	}
	out := b.Clone()
	return &out, nil
}

func (r *MemoryReservationRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error) {
	r.mu.RLock()
	id, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFoundError("payment session", sessionID)
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryReservationRepo) GetReservation(ctx context.Context, bookingID string) (*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[bookingID]
	if !ok {
		return nil, models.NewNotFoundError("reservation", bookingID)
	}
	return &res, nil
}

func (r *MemoryReservationRepo) ListByRequester(ctx context.Context, requesterID string, filter models.BookingFilter) ([]models.Booking, error) {
	return r.list(filter, func(b models.Booking) bool { return b.RequesterID == requesterID }), nil
}

func (r *MemoryReservationRepo) ListByProvider(ctx context.Context, providerID string, filter models.BookingFilter) ([]models.Booking, error) {
	return r.list(filter, func(b models.Booking) bool { return b.ProviderID == providerID }), nil
}

func (r *MemoryReservationRepo) ListByStatusBefore(ctx context.Context, status models.BookingStatus, field TimeField, before time.Time, limit int64) ([]models.Booking, error) {
	filter := models.BookingFilter{Statuses: []models.BookingStatus{status}, Limit: limit}
	return r.list(filter, func(b models.Booking) bool {
		return timeOf(b, field).Before(before)
	}), nil
}

func (r *MemoryReservationRepo) list(filter models.BookingFilter, match func(models.Booking) bool) []models.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Booking, 0)
	for _, b := range r.bookings {
		if !match(b) || !statusMatches(b.Status, filter.Statuses) {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if filter.Limit > 0 && int64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func statusMatches(s models.BookingStatus, want []models.BookingStatus) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if s == w {
			return true
		}
	}
	return false
}

func timeOf(b models.Booking, field TimeField) time.Time {
	switch field {
	case FieldEndTime:
		return b.EndTime
	case FieldCreatedAt:
		return b.CreatedAt
	default:
		return b.StartTime
	}
}
