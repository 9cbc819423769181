package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/apperr"
)

// MockGateway is a scriptable in-memory gateway for tests and local
// simulation. Outcomes are keyed by order id; a charge is recorded on
// first success so repeat calls with the same order id stay idempotent.
type MockGateway struct {
	mu       sync.RWMutex
	charged  map[string]string // orderID -> paymentID
	failures map[string][]error
	declined map[string]bool
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		charged:  make(map[string]string),
		failures: make(map[string][]error),
		declined: make(map[string]bool),
	}
}

// FailNext scripts errors returned, in order, by upcoming charges for
// the order before a success is allowed through.
func (g *MockGateway) FailNext(orderID string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[orderID] = append(g.failures[orderID], errs...)
}

// Decline scripts a permanent decline for every charge of the order.
func (g *MockGateway) Decline(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declined[orderID] = true
}

func (g *MockGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if paymentID, ok := g.charged[req.OrderID]; ok {
		return &ChargeResult{Success: true, PaymentID: paymentID}, nil
	}

	if g.declined[req.OrderID] {
		return nil, apperr.Newf(apperr.KindPermanent, "card declined")
	}

	if queue := g.failures[req.OrderID]; len(queue) > 0 {
		err := queue[0]
		g.failures[req.OrderID] = queue[1:]
		return nil, err
	}

	paymentID := uuid.New().String()
	g.charged[req.OrderID] = paymentID
	return &ChargeResult{Success: true, PaymentID: paymentID}, nil
}

// Charged reports whether the order was ever successfully charged.
func (g *MockGateway) Charged(orderID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.charged[orderID]
	return ok
}

var _ Gateway = (*MockGateway)(nil)
