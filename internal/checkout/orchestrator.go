package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/payment"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/queue"
	"github.com/cloud-wave-best-zizon/fulfillment-service/pkg/retry"
)

// CartValidator is the cart store's checkout contract.
type CartValidator interface {
	ValidateForCheckout(ctx context.Context, userID string) (*domain.CartSummary, error)
}

type Result struct {
	State            State    `json:"status"`
	OrderID          string   `json:"order_id"`
	Queued           bool     `json:"queued"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Orchestrator runs one checkout attempt through the state machine:
// validate the cart, charge payment with bounded retries, enqueue the
// order for the fulfillment worker. Executions are independent; all
// coordination happens in the backing stores.
type Orchestrator struct {
	carts       CartValidator
	gateway     payment.Gateway
	producer    queue.Producer
	retryPolicy retry.Policy
	timeout     time.Duration
	logger      *zap.Logger

	// retryTimer is nil in production; tests inject a fake to observe
	// the backoff schedule.
	retryTimer backoff.Timer
}

func NewOrchestrator(
	carts CartValidator,
	gateway payment.Gateway,
	producer queue.Producer,
	retryPolicy retry.Policy,
	timeout time.Duration,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		carts:       carts,
		gateway:     gateway,
		producer:    producer,
		retryPolicy: retryPolicy,
		timeout:     timeout,
		logger:      logger,
	}
}

// Run executes the workflow to a terminal state. Side effects are
// strictly ordered: no payment before a valid cart, no enqueue before a
// successful charge.
func (o *Orchestrator) Run(ctx context.Context, req domain.CheckoutRequest) Result {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	state := StateValidateCart
	result := Result{OrderID: req.OrderID}

	summary, event := o.validateCart(ctx, req, &result)
	state = o.step(state, event, req.OrderID)
	if state.Terminal() {
		result.State = state
		return result
	}

	paymentID, event := o.processPayment(ctx, req, summary, &result)
	state = o.step(state, event, req.OrderID)
	if state.Terminal() {
		result.State = state
		return result
	}

	event = o.enqueueOrder(ctx, req, summary, paymentID, &result)
	state = o.step(state, event, req.OrderID)

	result.State = state
	result.Queued = state == StateSucceeded
	return result
}

func (o *Orchestrator) step(state State, event Event, orderID string) State {
	next, ok := Next(state, event)
	if !ok {
		// The table covers every event each step can emit; reaching
		// here is a programming error.
		panic(fmt.Sprintf("no transition from %s on %s (order %s)", state, event, orderID))
	}
	o.logger.Info("checkout transition",
		zap.String("order_id", orderID),
		zap.String("from", string(state)),
		zap.String("event", string(event)),
		zap.String("to", string(next)))
	return next
}

func (o *Orchestrator) validateCart(ctx context.Context, req domain.CheckoutRequest, result *Result) (*domain.CartSummary, Event) {
	summary, err := o.carts.ValidateForCheckout(ctx, req.UserID)
	if err != nil {
		result.Error = err.Error()
		result.ValidationErrors = []string{err.Error()}
		return nil, EventCartInvalid
	}
	if !summary.Valid {
		result.ValidationErrors = summary.Errors
		return nil, EventCartInvalid
	}
	// The server-side repriced cart is authoritative; a caller-supplied
	// total that disagrees means the client saw stale prices.
	if !req.TotalAmount.IsZero() && !req.TotalAmount.Equal(summary.TotalAmount) {
		mismatch := fmt.Sprintf("total mismatch: request %s, cart %s", req.TotalAmount, summary.TotalAmount)
		result.ValidationErrors = []string{mismatch}
		return nil, EventCartInvalid
	}
	return summary, EventCartValid
}

func (o *Orchestrator) processPayment(ctx context.Context, req domain.CheckoutRequest, summary *domain.CartSummary, result *Result) (string, Event) {
	chargeReq := payment.ChargeRequest{
		OrderID:      req.OrderID,
		UserID:       req.UserID,
		Amount:       summary.TotalAmount,
		PaymentToken: req.PaymentToken,
		Items:        summary.Items,
	}

	var paymentID string
	attempt := 0
	err := retry.DoWithTimer(ctx, o.retryPolicy, func() error {
		attempt++
		res, err := o.gateway.Charge(ctx, chargeReq)
		if err != nil {
			o.logger.Warn("payment attempt failed",
				zap.String("order_id", req.OrderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		paymentID = res.PaymentID
		return nil
	}, o.retryTimer)
	if err != nil {
		result.Error = err.Error()
		return "", EventPaymentFailed
	}
	return paymentID, EventPaymentSucceeded
}

func (o *Orchestrator) enqueueOrder(ctx context.Context, req domain.CheckoutRequest, summary *domain.CartSummary, paymentID string, result *Result) Event {
	msg := domain.OrderMessage{
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		Items:          summary.Items,
		CartValidation: summary,
		PaymentID:      paymentID,
		RecipientEmail: req.Email,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		result.Error = err.Error()
		return EventEnqueueFailed
	}

	if err := o.producer.Enqueue(ctx, body); err != nil {
		// Known gap: the charge succeeded but the order never reached
		// the queue, and no compensation path exists. Log loudly so
		// operators can reconcile by hand.
		o.logger.Error("charged but not queued",
			zap.String("order_id", req.OrderID),
			zap.String("payment_id", paymentID),
			zap.Error(err))
		result.Error = err.Error()
		return EventEnqueueFailed
	}
	return EventEnqueued
}
