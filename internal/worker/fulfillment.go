// Package worker consumes the durable order queue and drives each order
// through fulfillment: order record, inventory decrement, cart clear,
// notifications, final status. The worker never retries internally; it
// nacks and lets the queue's redelivery and dead-letter machinery be the
// retry boundary.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/apperr"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/events"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/queue"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/repository"
)

type OrderStore interface {
	PutOrder(ctx context.Context, order *domain.Order) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, processingErr string) error
	MarkFailed(ctx context.Context, orderID, userID, reason string) error
}

type InventoryStore interface {
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
}

type CartStore interface {
	ClearCart(ctx context.Context, userID string) error
}

// Ledger tracks which order ids already had their non-idempotent side
// effects (inventory decrement, cart clear) applied.
type Ledger interface {
	Claim(ctx context.Context, orderID string) error
}

type Notifier interface {
	Dispatch(ctx context.Context, req domain.NotificationRequest) []domain.ChannelResult
}

// EventPublisher mirrors events.Producer; nil disables publishing.
type EventPublisher interface {
	PublishOrderCompleted(event events.OrderCompletedEvent) error
	PublishOrderFailed(event events.OrderFailedEvent) error
	PublishLowStock(event events.LowStockEvent) error
}

type Worker struct {
	consumer  queue.Consumer
	orders    OrderStore
	inventory InventoryStore
	carts     CartStore
	ledger    Ledger
	notifier  Notifier
	publisher EventPublisher // nil when Kafka is not configured

	batchSize         int
	lowStockThreshold int
	adminEmail        string
	logger            *zap.Logger
}

type Options struct {
	BatchSize         int
	LowStockThreshold int
	AdminEmail        string
}

func New(
	consumer queue.Consumer,
	orders OrderStore,
	inventory InventoryStore,
	carts CartStore,
	ledger Ledger,
	notifier Notifier,
	publisher EventPublisher,
	opts Options,
	logger *zap.Logger,
) *Worker {
	if opts.BatchSize < 1 || opts.BatchSize > 10 {
		opts.BatchSize = 10
	}
	if opts.LowStockThreshold == 0 {
		opts.LowStockThreshold = 10
	}
	return &Worker{
		consumer:          consumer,
		orders:            orders,
		inventory:         inventory,
		carts:             carts,
		ledger:            ledger,
		notifier:          notifier,
		publisher:         publisher,
		batchSize:         opts.BatchSize,
		lowStockThreshold: opts.LowStockThreshold,
		adminEmail:        opts.AdminEmail,
		logger:            logger,
	}
}

// Run polls the queue until ctx is cancelled. Messages in a batch are
// processed concurrently and settled independently.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("fulfillment worker started", zap.Int("batch_size", w.batchSize))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("fulfillment worker stopping")
			return
		default:
		}

		msgs, err := w.consumer.Receive(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("receive failed", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range msgs {
			wg.Add(1)
			go func(msg queue.Message) {
				defer wg.Done()
				w.handle(ctx, msg)
			}(msg)
		}
		wg.Wait()
	}
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	if err := w.Process(ctx, msg.Body); err != nil {
		w.logger.Error("order processing failed",
			zap.String("message_id", msg.ID),
			zap.Int("receive_count", msg.ReceiveCount),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err))
		// Every failure class nacks: redelivery and the DLQ budget are
		// the only backstop against starvation, including for malformed
		// messages that need DLQ inspection.
		if err := w.consumer.Nack(ctx, msg); err != nil {
			w.logger.Error("nack failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
		return
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		w.logger.Error("ack failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// Process runs the fulfillment pipeline for one message body.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var msg domain.OrderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return apperr.Newf(apperr.KindValidation, "malformed order message: %w", err)
	}
	if msg.OrderID == "" || msg.UserID == "" {
		return apperr.Newf(apperr.KindValidation, "order message missing order_id or user_id")
	}

	items := msg.EffectiveItems()
	if len(items) == 0 {
		// Cart validation upstream should have caught this.
		err := apperr.Newf(apperr.KindBusiness, "order %s has no items", msg.OrderID)
		w.markFailed(ctx, msg, err)
		return err
	}

	order := w.buildOrder(msg, items)
	if err := w.orders.PutOrder(ctx, order); err != nil {
		err = fmt.Errorf("failed to create order record for %s: %w", msg.OrderID, err)
		w.markFailed(ctx, msg, err)
		return err
	}

	claimed := true
	switch err := w.ledger.Claim(ctx, msg.OrderID); {
	case errors.Is(err, repository.ErrAlreadyProcessed):
		// Redelivery after the side effects already ran. Skip the
		// non-idempotent steps and only re-finalize.
		w.logger.Info("duplicate delivery, skipping side effects",
			zap.String("order_id", msg.OrderID))
		claimed = false
	case err != nil:
		w.markFailed(ctx, msg, err)
		return fmt.Errorf("failed to claim order %s: %w", msg.OrderID, err)
	}

	var inventoryResults []domain.InventoryUpdateResult
	if claimed {
		inventoryResults = w.decrementInventory(ctx, order)
		w.clearCart(ctx, msg.UserID, msg.OrderID)
		w.sendConfirmation(ctx, msg, order)
	}

	if err := w.orders.UpdateStatus(ctx, msg.OrderID, domain.OrderStatusCompleted, ""); err != nil {
		if claimed {
			// Give the redelivery a chance to retry the finalize; the
			// side effects stay claimed so they will not repeat.
			w.logger.Error("failed to finalize order", zap.String("order_id", msg.OrderID), zap.Error(err))
		}
		return fmt.Errorf("failed to finalize order %s: %w", msg.OrderID, err)
	}

	failedItems := 0
	for _, r := range inventoryResults {
		if !r.Success {
			failedItems++
		}
	}
	w.logger.Info("order completed",
		zap.String("order_id", msg.OrderID),
		zap.String("user_id", msg.UserID),
		zap.Int("items", len(items)),
		zap.Int("inventory_failures", failedItems))

	w.publishCompleted(order)
	return nil
}

// markFailed records the failure before the error is re-raised, so an
// operator sees a FAILED order even if the message later dead-letters.
// The upsert covers failures where the order record never landed. A
// following successful redelivery rewrites the record via the
// idempotent put, so the order is not stuck.
func (w *Worker) markFailed(ctx context.Context, msg domain.OrderMessage, cause error) {
	if err := w.orders.MarkFailed(ctx, msg.OrderID, msg.UserID, cause.Error()); err != nil {
		w.logger.Error("failed to mark order failed",
			zap.String("order_id", msg.OrderID), zap.Error(err))
	}
	if w.publisher != nil {
		if err := w.publisher.PublishOrderFailed(events.OrderFailedEvent{
			EventID:   uuid.New().String(),
			OrderID:   msg.OrderID,
			UserID:    msg.UserID,
			Reason:    cause.Error(),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			w.logger.Warn("failed to publish order-failed event",
				zap.String("order_id", msg.OrderID), zap.Error(err))
		}
	}
}

func (w *Worker) buildOrder(msg domain.OrderMessage, items []domain.OrderItem) *domain.Order {
	now := time.Now().UTC()
	order := &domain.Order{
		OrderID:   msg.OrderID,
		UserID:    msg.UserID,
		Items:     items,
		Status:    domain.OrderStatusProcessing,
		PaymentID: msg.PaymentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if cv := msg.CartValidation; cv != nil && !cv.TotalAmount.IsZero() {
		// Carried totals are authoritative when present.
		order.Subtotal = cv.Subtotal
		order.TaxAmount = cv.TaxAmount
		order.TotalAmount = cv.TotalAmount
	} else {
		order.ComputeTotals()
	}
	return order
}

// decrementInventory applies the per-item conditional decrements. A
// failed item is recorded and processing continues; one short item does
// not roll back the order.
func (w *Worker) decrementInventory(ctx context.Context, order *domain.Order) []domain.InventoryUpdateResult {
	results := make([]domain.InventoryUpdateResult, 0, len(order.Items))
	for _, item := range order.Items {
		result := domain.InventoryUpdateResult{
			ProductID:       item.ProductID,
			QuantityOrdered: item.Quantity,
		}

		newStock, err := w.inventory.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			result.Error = err.Error()
			w.logger.Warn("inventory decrement failed",
				zap.String("order_id", order.OrderID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			results = append(results, result)
			continue
		}

		result.Success = true
		result.NewStock = &newStock
		results = append(results, result)

		if newStock <= w.lowStockThreshold {
			w.alertLowStock(order.OrderID, item.ProductID, newStock)
		}
	}
	return results
}

// alertLowStock is fire-and-forget: an admin notification plus an
// inventory-alerts event, neither of which may slow down the order.
func (w *Worker) alertLowStock(orderID, productID string, newStock int) {
	w.logger.Warn("low stock",
		zap.String("product_id", productID),
		zap.Int("new_stock", newStock))

	if w.adminEmail != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			w.notifier.Dispatch(ctx, domain.NotificationRequest{
				UserID:           "admin",
				NotificationType: domain.NotificationLowStockAlert,
				RecipientEmail:   w.adminEmail,
				OrderData: domain.OrderData{
					OrderID:   orderID,
					Status:    fmt.Sprintf("product %s down to %d units", productID, newStock),
					Timestamp: time.Now().UTC(),
				},
			})
		}()
	}

	if w.publisher != nil {
		if err := w.publisher.PublishLowStock(events.LowStockEvent{
			EventID:   uuid.New().String(),
			ProductID: productID,
			NewStock:  newStock,
			OrderID:   orderID,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			w.logger.Warn("failed to publish low-stock event", zap.Error(err))
		}
	}
}

func (w *Worker) clearCart(ctx context.Context, userID, orderID string) {
	if err := w.carts.ClearCart(ctx, userID); err != nil {
		// Non-fatal: a stale cart is an annoyance, not a lost order.
		w.logger.Warn("failed to clear cart",
			zap.String("order_id", orderID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (w *Worker) sendConfirmation(ctx context.Context, msg domain.OrderMessage, order *domain.Order) {
	results := w.notifier.Dispatch(ctx, domain.NotificationRequest{
		UserID:           msg.UserID,
		NotificationType: domain.NotificationOrderConfirmation,
		RecipientEmail:   msg.RecipientEmail,
		OrderData: domain.OrderData{
			OrderID:         order.OrderID,
			Items:           order.Items,
			Subtotal:        order.Subtotal,
			TaxAmount:       order.TaxAmount,
			TotalAmount:     order.TotalAmount,
			Status:          string(order.Status),
			Timestamp:       time.Now().UTC(),
			ShippingAddress: msg.ShippingAddress,
		},
	})

	for _, r := range results {
		if !r.Success {
			w.logger.Warn("confirmation channel failed",
				zap.String("order_id", order.OrderID),
				zap.String("channel", string(r.Channel)),
				zap.String("error", r.Error))
		}
	}
}

func (w *Worker) publishCompleted(order *domain.Order) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishOrderCompleted(events.OrderCompletedEvent{
		EventID:     uuid.New().String(),
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       order.Items,
		Status:      string(domain.OrderStatusCompleted),
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		w.logger.Warn("failed to publish order-completed event",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
}
