package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	orderTopic     = "order-events"
	inventoryTopic = "inventory-alerts"
)

// Producer publishes order lifecycle and inventory events. All publishes
// are best-effort: the worker logs failures and moves on, it never fails
// an order over an event.
type Producer struct {
	orders    *kafka.Writer
	inventory *kafka.Writer
	logger    *zap.Logger
}

func NewProducer(brokers string, logger *zap.Logger) *Producer {
	return &Producer{
		orders: &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    orderTopic,
			Balancer: &kafka.LeastBytes{},
		},
		inventory: &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    inventoryTopic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

func (p *Producer) PublishOrderCompleted(event OrderCompletedEvent) error {
	return p.publish(p.orders, event.EventID, event, zap.String("order_id", event.OrderID))
}

func (p *Producer) PublishOrderFailed(event OrderFailedEvent) error {
	return p.publish(p.orders, event.EventID, event, zap.String("order_id", event.OrderID))
}

func (p *Producer) PublishLowStock(event LowStockEvent) error {
	return p.publish(p.inventory, event.EventID, event, zap.String("product_id", event.ProductID))
}

func (p *Producer) publish(w *kafka.Writer, key string, event any, field zap.Field) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event", field, zap.Error(err))
		return err
	}

	p.logger.Info("Event published", zap.String("topic", w.Topic), field)
	return nil
}

func (p *Producer) Close() error {
	if err := p.orders.Close(); err != nil {
		return err
	}
	return p.inventory.Close()
}
