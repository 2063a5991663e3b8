package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"escrowbook/models"
)

type mockSession struct {
	bookingID string
	state     GatewayState
	refunded  bool
}

// MockGateway is an in-memory gateway for local development and tests. Sessions stay open until
// SetState moves them.
type MockGateway struct {
	sessions sync.Map // sessionID -> *mockSession
	keys     sync.Map // idempotency key -> sessionID

	mu       sync.Mutex
	latency  time.Duration
	failures map[string]models.GatewayErrorKind
	calls    map[string]int
}

func NewMockGateway(latency time.Duration) *MockGateway {
	return &MockGateway{
		latency:  latency,
		failures: make(map[string]models.GatewayErrorKind),
		calls:    make(map[string]int),
	}
}

// FailNext makes the next call of op fail with the given kind.
func (g *MockGateway) FailNext(op string, kind models.GatewayErrorKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = kind
}

func (g *MockGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

// SetState simulates the customer completing, abandoning or failing checkout.
func (g *MockGateway) SetState(sessionID string, state GatewayState) error {
	v, ok := g.sessions.Load(sessionID)
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	v.(*mockSession).state = state
	return nil
}

// Calls returns how often op was invoked.
func (g *MockGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *MockGateway) Refunded(sessionID string) bool {
	v, ok := g.sessions.Load(sessionID)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return v.(*mockSession).refunded
}

func (g *MockGateway) begin(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls[op]++
	latency := g.latency
	kind, fail := g.failures[op]
	delete(g.failures, op)
	g.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return Classify(op, ctx.Err())
		case <-time.After(latency):
		}
	}
	if fail {
		return &models.GatewayError{Kind: kind, Op: op, Err: errors.New("injected failure")}
	}
	return nil
}

func (g *MockGateway) OpenSession(ctx context.Context, b *models.Booking) (*models.PaymentSession, error) {
	if err := g.begin(ctx, OpOpenSession); err != nil {
		return nil, err
	}
	key := IdempotencyKey(b.ID)
	id := fmt.Sprintf("mock_cs_%s", uuid.New().String()[:8])
	actual, _ := g.keys.LoadOrStore(key, id)
	id = actual.(string)
	g.sessions.LoadOrStore(id, &mockSession{bookingID: b.ID, state: StateOpen})
	return &models.PaymentSession{SessionID: id, ClientSecret: id + "_secret"}, nil
}

func (g *MockGateway) QueryStatus(ctx context.Context, sessionID string) (GatewayState, error) {
	if err := g.begin(ctx, OpQueryStatus); err != nil {
		return "", err
	}
	v, ok := g.sessions.Load(sessionID)
	if !ok {
		return "", &models.GatewayError{Kind: models.GatewayRejected, Op: OpQueryStatus, Err: fmt.Errorf("session not found: %s", sessionID)}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return v.(*mockSession).state, nil
}

func (g *MockGateway) Refund(ctx context.Context, sessionID string) error {
	if err := g.begin(ctx, OpRefund); err != nil {
		return err
	}
	v, ok := g.sessions.Load(sessionID)
	if !ok {
		return &models.GatewayError{Kind: models.GatewayRejected, Op: OpRefund, Err: fmt.Errorf("session not found: %s", sessionID)}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s := v.(*mockSession)
	if s.state != StatePaid && s.state != StateHeld {
		return &models.GatewayError{Kind: models.GatewayRejected, Op: OpRefund, Err: errors.New("session has no payment to refund")}
	}
	s.refunded = true
	return nil
}

func (g *MockGateway) ExpireSession(ctx context.Context, sessionID string) error {
	if err := g.begin(ctx, OpExpireSession); err != nil {
		return err
	}
	v, ok := g.sessions.Load(sessionID)
	if !ok {
		return &models.GatewayError{Kind: models.GatewayRejected, Op: OpExpireSession, Err: fmt.Errorf("session not found: %s", sessionID)}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s := v.(*mockSession)
	if s.state != StateOpen {
		return &models.GatewayError{Kind: models.GatewayRejected, Op: OpExpireSession, Err: fmt.Errorf("session is %s", s.state)}
	}
	s.state = StateExpired
	return nil
}
