// Package arbiter is the entry point for booking operations. It joins the provider snapshot, the
// reservation store, the lifecycle engine and the payment gateway.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	providerRepo "escrowbook/database/repository/provider"
	reservationRepo "escrowbook/database/repository/reservation"
	"escrowbook/models"
	"escrowbook/services/availability"
	"escrowbook/services/lifecycle"
	"escrowbook/services/payment"
)

// TaskScheduler queues a delayed gateway poll for a checkout session.
type TaskScheduler interface {
	SchedulePaymentCheck(ctx context.Context, bookingID, sessionID string, delay time.Duration) error
}

type Options struct {
	GatewayTimeout  time.Duration
	HoldTTL         time.Duration
	PollDelay       time.Duration
	DefaultCurrency models.Currency
	NewID           func() string
}

func (o *Options) applyDefaults() {
	if o.GatewayTimeout <= 0 {
		o.GatewayTimeout = 10 * time.Second
	}
	if o.HoldTTL <= 0 {
		o.HoldTTL = 30 * time.Minute
	}
	if o.PollDelay <= 0 {
		o.PollDelay = 5 * time.Minute
	}
	if !o.DefaultCurrency.IsValid() {
		o.DefaultCurrency = models.CurrencyUSD
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

type Deps struct {
	Providers providerRepo.ProviderRepository
	Bookings  reservationRepo.ReservationRepository
	Engine    *lifecycle.Engine
	Gateway   payment.Gateway
	Scheduler TaskScheduler
	Logger    *zap.Logger
}

type Arbiter struct {
	providers providerRepo.ProviderRepository
	bookings  reservationRepo.ReservationRepository
	engine    *lifecycle.Engine
	gateway   payment.Gateway
	scheduler TaskScheduler
	logger    *zap.Logger
	opts      Options

	refunding sync.Map // bookingID -> struct{} while a refund is in flight
}

func NewArbiter(d Deps, opts Options) *Arbiter {
	opts.applyDefaults()
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arbiter{
		providers: d.Providers,
		bookings:  d.Bookings,
		engine:    d.Engine,
		gateway:   d.Gateway,
		scheduler: d.Scheduler,
		logger:    logger,
		opts:      opts,
	}
}

// CreateResult is returned to the requester so the client can mount the embedded checkout.
type CreateResult struct {
	Booking        *models.Booking        `json:"booking"`
	PaymentSession *models.PaymentSession `json:"paymentSession"`
}

func (a *Arbiter) now() time.Time {
	return a.engine.Clock().UTC()
}

// CreateBooking reserves the requested interval and opens an escrow checkout for it.
func (a *Arbiter) CreateBooking(ctx context.Context, principal models.Principal, req models.BookingRequest) (*CreateResult, error) {
	if principal.ID == "" {
		return nil, models.NewValidationError("requesterId", "is required")
	}
	if err := a.validateRequest(&req); err != nil {
		return nil, err
	}
	if req.ProviderID == principal.ID {
		return nil, models.NewValidationError("providerId", "providers cannot book themselves")
	}

	provider, err := a.providers.GetByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	booking, err := a.draftBooking(principal, provider, req)
	if err != nil {
		return nil, err
	}

	res := availability.Resolve(*provider, booking.StartTime, booking.EndTime)
	if !res.WithinDeclaredAvailability {
		return nil, &models.ConflictError{
			Reason:      models.ConflictAvailability,
			Start:       booking.StartTime,
			End:         booking.EndTime,
			BufferHours: provider.EffectiveBufferHours(),
		}
	}

	if err := a.engine.Open(ctx, booking, res.Buffer); err != nil {
		return nil, err
	}

	session, err := a.openSession(ctx, booking)
	if err != nil {
		return nil, a.compensate(ctx, booking, err)
	}

	attached, err := a.engine.AttachSession(ctx, booking.ID, session.SessionID)
	if err != nil {
		booking.Payment.SessionID = session.SessionID
		a.expireSession(context.WithoutCancel(ctx), booking)
		return nil, a.compensate(ctx, booking, fmt.Errorf("failed to attach payment session to booking %s: %w", booking.ID, err))
	}
	a.schedulePoll(ctx, attached.ID, session.SessionID)
	a.engine.Announce(attached)

	return &CreateResult{Booking: attached, PaymentSession: session}, nil
}

func (a *Arbiter) validateRequest(req *models.BookingRequest) error {
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Notes = strings.TrimSpace(req.Notes)
	if req.ProviderID == "" {
		return models.NewValidationError("providerId", "is required")
	}
	if len(req.Services) == 0 {
		return models.NewValidationError("services", "at least one service is required")
	}
	for i, s := range req.Services {
		if strings.TrimSpace(s.ServiceID) == "" {
			return models.NewValidationError(fmt.Sprintf("services[%d].serviceId", i), "is required")
		}
		if math.IsNaN(s.DurationHours) || math.IsInf(s.DurationHours, 0) || s.DurationHours <= 0 {
			return models.NewValidationError(fmt.Sprintf("services[%d].durationHours", i), "must be positive")
		}
	}
	if req.StartTime.IsZero() {
		return models.NewValidationError("startTime", "is required")
	}
	req.StartTime = req.StartTime.UTC().Truncate(time.Minute)
	if req.StartTime.Before(a.now().Truncate(time.Minute)) {
		return models.NewValidationError("startTime", "must not be in the past")
	}
	if len(req.Notes) > models.MaxNotesLength {
		return models.NewValidationError("notes", fmt.Sprintf("must be at most %d characters", models.MaxNotesLength))
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.MethodCard
	}
	if !req.PaymentMethod.IsValid() {
		return models.NewValidationError("paymentMethod", fmt.Sprintf("unsupported payment method %q", req.PaymentMethod))
	}
	if req.Currency != "" {
		req.Currency = models.ParseCurrency(string(req.Currency))
		if !req.Currency.IsValid() {
			return models.NewValidationError("currency", fmt.Sprintf("unsupported currency %q", req.Currency))
		}
	}
	return nil
}

// draftBooking snapshots the requested services and derives the end time and total.
func (a *Arbiter) draftBooking(principal models.Principal, provider *models.Provider, req models.BookingRequest) (*models.Booking, error) {
	services := make([]models.BookedService, 0, len(req.Services))
	var hours, total float64
	for i, r := range req.Services {
		svc, ok := provider.FindService(r.ServiceID)
		if !ok {
			return nil, models.NewNotFoundError("service", r.ServiceID)
		}
		if err := checkDurationPolicy(i, svc.DurationPolicy, r.DurationHours); err != nil {
			return nil, err
		}
		services = append(services, models.BookedService{
			ServiceID:     svc.ID,
			Name:          svc.Name,
			HourlyRate:    svc.HourlyRate,
			DurationHours: r.DurationHours,
		})
		hours += r.DurationHours
		total += svc.HourlyRate * r.DurationHours
	}

	minutes := math.Round(hours * 60)
	if minutes < 1 {
		return nil, models.NewValidationError("services", "total duration must be at least one minute")
	}
	end := req.StartTime.Add(time.Duration(minutes) * time.Minute)

	currency := req.Currency
	if currency == "" {
		currency = provider.Currency
	}
	if !currency.IsValid() {
		currency = a.opts.DefaultCurrency
	}
	amount := math.Round(total*100) / 100

	return &models.Booking{
		ID:                 a.opts.NewID(),
		RequesterID:        principal.ID,
		ProviderID:         provider.ID,
		Services:           services,
		StartTime:          req.StartTime,
		EndTime:            end,
		BufferHours:        provider.EffectiveBufferHours(),
		DisputeWindowHours: provider.EffectiveDisputeWindowHours(),
		TotalAmount:        amount,
		Notes:              req.Notes,
		Payment: models.Payment{
			Method:   req.PaymentMethod,
			Amount:   amount,
			Currency: currency,
		},
	}, nil
}

func checkDurationPolicy(i int, p models.DurationPolicy, hours float64) error {
	field := fmt.Sprintf("services[%d].durationHours", i)
	if p.MinHours > 0 && hours < p.MinHours {
		return models.NewValidationError(field, fmt.Sprintf("must be at least %g hours", p.MinHours))
	}
	if p.MaxHours > 0 && hours > p.MaxHours {
		return models.NewValidationError(field, fmt.Sprintf("must be at most %g hours", p.MaxHours))
	}
	if p.StepHours > 0 {
		steps := hours / p.StepHours
		if math.Abs(steps-math.Round(steps)) > 1e-9 {
			return models.NewValidationError(field, fmt.Sprintf("must be a multiple of %g hours", p.StepHours))
		}
	}
	return nil
}

func (a *Arbiter) openSession(ctx context.Context, b *models.Booking) (*models.PaymentSession, error) {
	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	defer cancel()
	session, err := a.gateway.OpenSession(gctx, b)
	if err != nil {
		return nil, payment.Classify(payment.OpOpenSession, err)
	}
	return session, nil
}

// compensate handles a failed checkout. A timeout leaves the outcome unknown, so the booking stays
// pending and retryable; any other failure discards the booking and its reservation.
func (a *Arbiter) compensate(ctx context.Context, b *models.Booking, cause error) error {
	var gerr *models.GatewayError
	if errors.As(cause, &gerr) && gerr.Kind == models.GatewayTimeout {
		a.logger.Warn("checkout timed out, booking kept pending",
			zap.String("bookingID", b.ID), zap.Error(cause))
		a.engine.Announce(b)
		kept := *gerr
		kept.BookingID = b.ID
		return &kept
	}

	if err := a.bookings.Discard(context.WithoutCancel(ctx), b.ID); err != nil {
		a.logger.Error("compensating rollback failed, reservation may be orphaned",
			zap.String("bookingID", b.ID),
			zap.String("providerID", b.ProviderID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return &models.RollbackError{BookingID: b.ID, Cause: cause, Err: err}
	}
	a.logger.Info("booking rolled back after checkout failure", zap.String("bookingID", b.ID), zap.Error(cause))
	return cause
}

func (a *Arbiter) schedulePoll(ctx context.Context, bookingID, sessionID string) {
	if a.scheduler == nil {
		return
	}
	if err := a.scheduler.SchedulePaymentCheck(ctx, bookingID, sessionID, a.opts.PollDelay); err != nil {
		a.logger.Warn("failed to schedule payment check",
			zap.String("bookingID", bookingID), zap.String("sessionID", sessionID), zap.Error(err))
	}
}
