package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/apperr"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/events"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/queue"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/repository"
)

type memOrders struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	puts    int
	putErr  error
	statErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]*domain.Order{}}
}

func (m *memOrders) PutOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *memOrders) UpdateStatus(_ context.Context, orderID string, status domain.OrderStatus, processingErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statErr != nil {
		return m.statErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	// Same guard as the store: terminal statuses never move.
	if order.Status != domain.OrderStatusProcessing {
		return nil
	}
	order.Status = status
	order.Error = processingErr
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memOrders) MarkFailed(_ context.Context, orderID, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		// Same upsert as the store: a stub record when the put never landed.
		m.orders[orderID] = &domain.Order{
			OrderID:   orderID,
			UserID:    userID,
			Status:    domain.OrderStatusFailed,
			Error:     reason,
			UpdatedAt: time.Now().UTC(),
		}
		return nil
	}
	if order.Status != domain.OrderStatusProcessing {
		return nil
	}
	order.Status = domain.OrderStatusFailed
	order.Error = reason
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memOrders) get(orderID string) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID]
}

type memInventory struct {
	mu          sync.Mutex
	stock       map[string]int
	decremented int
}

func (m *memInventory) DecrementStock(_ context.Context, productID string, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.stock[productID]
	if !ok {
		return 0, repository.ErrProductNotFound
	}
	if current < qty {
		return 0, repository.ErrInsufficientStock
	}
	m.stock[productID] = current - qty
	m.decremented += qty
	return m.stock[productID], nil
}

type memCarts struct {
	mu     sync.Mutex
	clears int
	err    error
}

func (m *memCarts) ClearCart(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.clears++
	return nil
}

type memLedger struct {
	mu       sync.Mutex
	claims   map[string]bool
	claimErr error
}

func newMemLedger() *memLedger {
	return &memLedger{claims: map[string]bool{}}
}

func (m *memLedger) Claim(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return m.claimErr
	}
	if m.claims[orderID] {
		return repository.ErrAlreadyProcessed
	}
	m.claims[orderID] = true
	return nil
}

type memNotifier struct {
	mu   sync.Mutex
	reqs []domain.NotificationRequest
}

func (m *memNotifier) Dispatch(_ context.Context, req domain.NotificationRequest) []domain.ChannelResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	return []domain.ChannelResult{{Channel: domain.ChannelEmail, Success: true, Attempts: 1}}
}

func (m *memNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

type memPublisher struct {
	mu        sync.Mutex
	completed int
	failed    int
	lowStock  []events.LowStockEvent
}

func (m *memPublisher) PublishOrderCompleted(events.OrderCompletedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	return nil
}

func (m *memPublisher) PublishOrderFailed(events.OrderFailedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	return nil
}

func (m *memPublisher) PublishLowStock(e events.LowStockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lowStock = append(m.lowStock, e)
	return nil
}

type env struct {
	worker    *Worker
	consumer  *queue.MemoryQueue
	orders    *memOrders
	inventory *memInventory
	carts     *memCarts
	ledger    *memLedger
	notifier  *memNotifier
	publisher *memPublisher
}

func newEnv(stock map[string]int) *env {
	e := &env{
		consumer:  queue.NewMemoryQueue(90*time.Second, 3),
		orders:    newMemOrders(),
		inventory: &memInventory{stock: stock},
		carts:     &memCarts{},
		ledger:    newMemLedger(),
		notifier:  &memNotifier{},
		publisher: &memPublisher{},
	}
	e.worker = New(e.consumer, e.orders, e.inventory, e.carts, e.ledger, e.notifier, e.publisher,
		Options{BatchSize: 10, LowStockThreshold: 10}, zap.NewNop())
	return e
}

func orderBody(t *testing.T, msg domain.OrderMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func simpleMessage(orderID string) domain.OrderMessage {
	return domain.OrderMessage{
		UserID:    "u1",
		OrderID:   orderID,
		PaymentID: "pay-1",
		Items: []domain.OrderItem{
			{ProductID: "p1", ProductName: "Widget", UnitPrice: decimal.RequireFromString("29.99"), Quantity: 2},
			{ProductID: "p2", ProductName: "Gadget", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 1},
		},
	}
}

func TestProcess_HappyPath(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100, "p2": 100})

	err := e.worker.Process(context.Background(), orderBody(t, simpleMessage("order-1")))
	require.NoError(t, err)

	order := e.orders.get("order-1")
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.Equal(t, "pay-1", order.PaymentID)
	// Totals recomputed from items at the fixed 8% rate.
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("79.97")), "subtotal = %s", order.Subtotal)
	assert.True(t, order.TaxAmount.Equal(decimal.RequireFromString("6.40")), "tax = %s", order.TaxAmount)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("86.37")), "total = %s", order.TotalAmount)

	assert.Equal(t, 98, e.inventory.stock["p1"])
	assert.Equal(t, 99, e.inventory.stock["p2"])
	assert.Equal(t, 1, e.carts.clears)
	assert.Equal(t, 1, e.notifier.count())
	assert.Equal(t, domain.NotificationOrderConfirmation, e.notifier.reqs[0].NotificationType)
	assert.Equal(t, 1, e.publisher.completed)
}

func TestProcess_CarriedTotalsPreferred(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100, "p2": 100})

	msg := simpleMessage("order-1")
	msg.CartValidation = &domain.CartSummary{
		Items:       msg.Items,
		Subtotal:    decimal.RequireFromString("79.97"),
		TaxAmount:   decimal.RequireFromString("6.40"),
		TotalAmount: decimal.RequireFromString("91.36"), // includes shipping upstream
		Valid:       true,
	}

	require.NoError(t, e.worker.Process(context.Background(), orderBody(t, msg)))

	order := e.orders.get("order-1")
	require.NotNil(t, order)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("91.36")), "carried totals win, got %s", order.TotalAmount)
}

func TestProcess_NestedItemsFallback(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100})

	msg := domain.OrderMessage{
		UserID:    "u1",
		OrderID:   "order-legacy",
		PaymentID: "pay-1",
		CartValidation: &domain.CartSummary{
			Items: []domain.OrderItem{
				{ProductID: "p1", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1},
			},
			Valid: true,
		},
	}

	require.NoError(t, e.worker.Process(context.Background(), orderBody(t, msg)))
	assert.Equal(t, 99, e.inventory.stock["p1"])
	assert.Equal(t, domain.OrderStatusCompleted, e.orders.get("order-legacy").Status)
}

func TestProcess_MalformedMessage(t *testing.T) {
	e := newEnv(map[string]int{})

	err := e.worker.Process(context.Background(), []byte(`{not json`))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProcess_MissingIdentifiers(t *testing.T) {
	e := newEnv(map[string]int{})

	err := e.worker.Process(context.Background(), []byte(`{"items":[{"product_id":"p1","quantity":1}]}`))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProcess_EmptyItemsFailsFast(t *testing.T) {
	e := newEnv(map[string]int{})

	msg := domain.OrderMessage{UserID: "u1", OrderID: "order-1", PaymentID: "pay-1"}
	err := e.worker.Process(context.Background(), orderBody(t, msg))
	require.Error(t, err)
	assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))

	// Even a fail-fast rejection leaves a record for operators.
	order := e.orders.get("order-1")
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)
	assert.Contains(t, order.Error, "no items")
	assert.Equal(t, 1, e.publisher.failed)
	assert.Equal(t, 0, e.carts.clears)
}

func TestProcess_PutOrderFailureMarksOrderFailed(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100, "p2": 100})
	e.orders.putErr = errors.New("dynamodb throttled")

	err := e.worker.Process(context.Background(), orderBody(t, simpleMessage("order-1")))
	require.Error(t, err)

	// The put never landed, so the failure write has to create the record.
	order := e.orders.get("order-1")
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)
	assert.Contains(t, order.Error, "dynamodb throttled")
	assert.Equal(t, 1, e.publisher.failed)
	assert.Equal(t, 0, e.inventory.decremented)
	assert.Equal(t, 0, e.notifier.count())
}

// Pins the per-item failure policy: a single item's stock shortfall is
// recorded, the remaining items still decrement, and the order itself
// finalizes COMPLETED.
func TestProcess_InsufficientStockContinuesAndCompletes(t *testing.T) {
	e := newEnv(map[string]int{"p1": 5, "p2": 100})

	msg := simpleMessage("order-1")
	msg.Items[0].Quantity = 10 // p1 has only 5

	require.NoError(t, e.worker.Process(context.Background(), orderBody(t, msg)))

	assert.Equal(t, 5, e.inventory.stock["p1"], "failed decrement leaves stock untouched")
	assert.Equal(t, 99, e.inventory.stock["p2"], "later items still processed")
	assert.Equal(t, domain.OrderStatusCompleted, e.orders.get("order-1").Status)
	assert.Equal(t, 1, e.carts.clears)
	assert.Equal(t, 1, e.publisher.completed)
}

func TestProcess_LowStockAlert(t *testing.T) {
	e := newEnv(map[string]int{"p1": 12, "p2": 100})

	msg := simpleMessage("order-1")
	msg.Items[0].Quantity = 3 // 12 -> 9, at or below the threshold of 10

	require.NoError(t, e.worker.Process(context.Background(), orderBody(t, msg)))

	require.Len(t, e.publisher.lowStock, 1)
	assert.Equal(t, "p1", e.publisher.lowStock[0].ProductID)
	assert.Equal(t, 9, e.publisher.lowStock[0].NewStock)
}

func TestProcess_ClearCartFailureIsNonFatal(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100, "p2": 100})
	e.carts.err = errors.New("batch write throttled")

	require.NoError(t, e.worker.Process(context.Background(), orderBody(t, simpleMessage("order-1"))))
	assert.Equal(t, domain.OrderStatusCompleted, e.orders.get("order-1").Status)
}

func TestProcess_DuplicateDeliverySkipsSideEffects(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100, "p2": 100})
	body := orderBody(t, simpleMessage("order-1"))

	require.NoError(t, e.worker.Process(context.Background(), body))
	require.NoError(t, e.worker.Process(context.Background(), body))

	// Exactly one order record, decremented once, cart cleared once,
	// customer notified once.
	assert.Len(t, e.orders.orders, 1)
	assert.Equal(t, 98, e.inventory.stock["p1"])
	assert.Equal(t, 99, e.inventory.stock["p2"])
	assert.Equal(t, 1, e.carts.clears)
	assert.Equal(t, 1, e.notifier.count())
	assert.Equal(t, domain.OrderStatusCompleted, e.orders.get("order-1").Status)
}

func TestProcess_ClaimFailureMarksOrderFailed(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100, "p2": 100})
	e.ledger.claimErr = errors.New("ledger table offline")

	err := e.worker.Process(context.Background(), orderBody(t, simpleMessage("order-1")))
	require.Error(t, err)

	order := e.orders.get("order-1")
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)
	assert.Contains(t, order.Error, "ledger table offline")
	assert.Equal(t, 1, e.publisher.failed)
	assert.Equal(t, 0, e.inventory.decremented, "no side effects without a claim")
}

func TestProcess_ConcurrentDecrementsNeverOversell(t *testing.T) {
	const initialStock = 10
	e := newEnv(map[string]int{"p1": initialStock})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := domain.OrderMessage{
				UserID:    fmt.Sprintf("u%d", i),
				OrderID:   fmt.Sprintf("order-%d", i),
				PaymentID: "pay",
				Items: []domain.OrderItem{
					{ProductID: "p1", UnitPrice: decimal.RequireFromString("1.00"), Quantity: 1},
				},
			}
			_ = e.worker.Process(context.Background(), orderBody(t, msg))
		}(i)
	}
	wg.Wait()

	e.inventory.mu.Lock()
	defer e.inventory.mu.Unlock()
	assert.GreaterOrEqual(t, e.inventory.stock["p1"], 0, "stock never negative")
	assert.Equal(t, initialStock, e.inventory.decremented, "successful decrements never exceed initial stock")
	assert.Equal(t, 0, e.inventory.stock["p1"])
}

func TestWorker_PoisonMessageRoutesToDLQ(t *testing.T) {
	e := newEnv(map[string]int{})
	ctx := context.Background()

	require.NoError(t, e.consumer.Enqueue(ctx, []byte(`{not json`)))

	deliveries := 0
	for i := 0; i < 6; i++ {
		msgs, err := e.consumer.Receive(ctx, 10)
		require.NoError(t, err)
		if len(msgs) == 0 {
			break
		}
		for _, msg := range msgs {
			deliveries++
			e.worker.handle(ctx, msg)
		}
	}

	assert.Equal(t, 3, deliveries, "delivered maxReceiveCount times before dead-lettering")
	require.Len(t, e.consumer.DeadLetters(), 1)

	msgs, err := e.consumer.Receive(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "dead-lettered message is never delivered again")
}

func TestWorker_RunProcessesBatchAndAcks(t *testing.T) {
	e := newEnv(map[string]int{"p1": 100, "p2": 100})
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, e.consumer.Enqueue(ctx, orderBody(t, simpleMessage(fmt.Sprintf("order-%d", i)))))
	}

	done := make(chan struct{})
	go func() {
		e.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return e.consumer.Len() == 0
	}, 5*time.Second, 10*time.Millisecond, "all messages acked")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}

	e.orders.mu.Lock()
	defer e.orders.mu.Unlock()
	assert.Len(t, e.orders.orders, 3)
	for _, order := range e.orders.orders {
		assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	}
}
