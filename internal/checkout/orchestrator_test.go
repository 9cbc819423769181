package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/apperr"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/payment"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/queue"
	"github.com/cloud-wave-best-zizon/fulfillment-service/pkg/retry"
)

type fakeCarts struct {
	summary *domain.CartSummary
	err     error
}

func (f *fakeCarts) ValidateForCheckout(context.Context, string) (*domain.CartSummary, error) {
	return f.summary, f.err
}

type failingProducer struct{ err error }

func (f *failingProducer) Enqueue(context.Context, []byte) error { return f.err }

// fakeTimer satisfies backoff.Timer, recording each requested delay and
// firing immediately so tests observe the schedule without sleeping.
type fakeTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func validSummary() *domain.CartSummary {
	return &domain.CartSummary{
		UserID: "u1",
		Valid:  true,
		Items: []domain.OrderItem{
			{ProductID: "p1", ProductName: "Widget", UnitPrice: decimal.RequireFromString("29.99"), Quantity: 2, Subtotal: decimal.RequireFromString("59.98")},
		},
		Subtotal:    decimal.RequireFromString("59.98"),
		TaxAmount:   decimal.RequireFromString("4.80"),
		TotalAmount: decimal.RequireFromString("64.78"),
	}
}

func checkoutRequest() domain.CheckoutRequest {
	return domain.CheckoutRequest{
		UserID:       "u1",
		OrderID:      "order-1",
		PaymentToken: "tok_visa",
		Email:        "u1@example.com",
	}
}

func newTestOrchestrator(carts CartValidator, gw payment.Gateway, producer queue.Producer) *Orchestrator {
	o := NewOrchestrator(carts, gw, producer, retry.DefaultPaymentPolicy, 10*time.Minute, zap.NewNop())
	o.retryTimer = newFakeTimer()
	return o
}

func TestRun_Success(t *testing.T) {
	gw := payment.NewMockGateway()
	q := queue.NewMemoryQueue(90*time.Second, 3)
	o := newTestOrchestrator(&fakeCarts{summary: validSummary()}, gw, q)

	result := o.Run(context.Background(), checkoutRequest())

	assert.Equal(t, StateSucceeded, result.State)
	assert.True(t, result.Queued)
	assert.Equal(t, "order-1", result.OrderID)

	msgs, err := q.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var payload domain.OrderMessage
	require.NoError(t, json.Unmarshal(msgs[0].Body, &payload))
	assert.Equal(t, "order-1", payload.OrderID)
	assert.Equal(t, "u1", payload.UserID)
	assert.NotEmpty(t, payload.PaymentID)
	require.NotNil(t, payload.CartValidation)
	assert.True(t, payload.CartValidation.TotalAmount.Equal(decimal.RequireFromString("64.78")))
	assert.Len(t, payload.Items, 1)
}

func TestRun_InvalidCartStopsBeforePayment(t *testing.T) {
	gw := payment.NewMockGateway()
	q := queue.NewMemoryQueue(90*time.Second, 3)
	summary := &domain.CartSummary{UserID: "u1", Valid: false, Errors: []string{"cart is empty"}}
	o := newTestOrchestrator(&fakeCarts{summary: summary}, gw, q)

	result := o.Run(context.Background(), checkoutRequest())

	assert.Equal(t, StateCartValidationFailed, result.State)
	assert.False(t, result.Queued)
	assert.Equal(t, []string{"cart is empty"}, result.ValidationErrors)
	assert.False(t, gw.Charged("order-1"), "no payment attempt on an invalid cart")
	assert.Zero(t, q.Len())
}

func TestRun_TotalMismatchStopsBeforePayment(t *testing.T) {
	gw := payment.NewMockGateway()
	q := queue.NewMemoryQueue(90*time.Second, 3)
	o := newTestOrchestrator(&fakeCarts{summary: validSummary()}, gw, q)

	req := checkoutRequest()
	req.TotalAmount = decimal.RequireFromString("60.00") // cart reprices to 64.78

	result := o.Run(context.Background(), req)

	assert.Equal(t, StateCartValidationFailed, result.State)
	require.Len(t, result.ValidationErrors, 1)
	assert.Contains(t, result.ValidationErrors[0], "total mismatch")
	assert.False(t, gw.Charged("order-1"), "no payment attempt on a stale total")
	assert.Zero(t, q.Len())
}

func TestRun_MatchingTotalPassesValidation(t *testing.T) {
	gw := payment.NewMockGateway()
	q := queue.NewMemoryQueue(90*time.Second, 3)
	o := newTestOrchestrator(&fakeCarts{summary: validSummary()}, gw, q)

	req := checkoutRequest()
	req.TotalAmount = decimal.RequireFromString("64.78")

	result := o.Run(context.Background(), req)
	assert.Equal(t, StateSucceeded, result.State)
}

func TestRun_CartStoreError(t *testing.T) {
	gw := payment.NewMockGateway()
	q := queue.NewMemoryQueue(90*time.Second, 3)
	o := newTestOrchestrator(&fakeCarts{err: errors.New("store unavailable")}, gw, q)

	result := o.Run(context.Background(), checkoutRequest())

	assert.Equal(t, StateCartValidationFailed, result.State)
	assert.False(t, gw.Charged("order-1"))
}

func TestRun_TransientPaymentFailureIsRetriedThenSucceeds(t *testing.T) {
	gw := payment.NewMockGateway()
	gw.FailNext("order-1",
		apperr.Newf(apperr.KindTransient, "gateway returned 503"),
		apperr.Newf(apperr.KindTransient, "gateway returned 503"))
	q := queue.NewMemoryQueue(90*time.Second, 3)

	timer := newFakeTimer()
	o := NewOrchestrator(&fakeCarts{summary: validSummary()}, gw, q, retry.DefaultPaymentPolicy, 10*time.Minute, zap.NewNop())
	o.retryTimer = timer

	result := o.Run(context.Background(), checkoutRequest())

	assert.Equal(t, StateSucceeded, result.State)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, timer.delays)
}

func TestRun_PaymentRetriesExhausted(t *testing.T) {
	gw := payment.NewMockGateway()
	gw.FailNext("order-1",
		apperr.Newf(apperr.KindTransient, "timeout"),
		apperr.Newf(apperr.KindTransient, "timeout"),
		apperr.Newf(apperr.KindTransient, "timeout"),
		apperr.Newf(apperr.KindTransient, "timeout"))
	q := queue.NewMemoryQueue(90*time.Second, 3)

	timer := newFakeTimer()
	o := NewOrchestrator(&fakeCarts{summary: validSummary()}, gw, q, retry.DefaultPaymentPolicy, 10*time.Minute, zap.NewNop())
	o.retryTimer = timer

	result := o.Run(context.Background(), checkoutRequest())

	assert.Equal(t, StatePaymentFailed, result.State)
	assert.False(t, result.Queued)
	assert.NotEmpty(t, result.Error)
	// Three retries after the initial attempt: 2s, 4s, 8s.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, timer.delays)
	assert.Zero(t, q.Len(), "nothing enqueued after payment failure")
}

func TestRun_PermanentPaymentFailureIsNotRetried(t *testing.T) {
	gw := payment.NewMockGateway()
	gw.FailNext("order-1", apperr.Newf(apperr.KindPermanent, "card declined"))
	q := queue.NewMemoryQueue(90*time.Second, 3)

	timer := newFakeTimer()
	o := NewOrchestrator(&fakeCarts{summary: validSummary()}, gw, q, retry.DefaultPaymentPolicy, 10*time.Minute, zap.NewNop())
	o.retryTimer = timer

	result := o.Run(context.Background(), checkoutRequest())

	assert.Equal(t, StatePaymentFailed, result.State)
	assert.Empty(t, timer.delays, "permanent errors are not retried")
	// The scripted failure was consumed, so the gateway never charged.
	assert.False(t, gw.Charged("order-1"))
}

func TestRun_EnqueueFailureAfterCharge(t *testing.T) {
	gw := payment.NewMockGateway()
	o := newTestOrchestrator(&fakeCarts{summary: validSummary()}, gw, &failingProducer{err: errors.New("queue unavailable")})

	result := o.Run(context.Background(), checkoutRequest())

	assert.Equal(t, StateQueueFailed, result.State)
	assert.False(t, result.Queued)
	// The charge went through and there is no compensation path.
	assert.True(t, gw.Charged("order-1"))
}
