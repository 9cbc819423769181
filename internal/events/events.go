package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
)

type OrderCompletedEvent struct {
	EventID     string             `json:"event_id"`
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []domain.OrderItem `json:"items"`
	Status      string             `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
}

type OrderFailedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type LowStockEvent struct {
	EventID   string    `json:"event_id"`
	ProductID string    `json:"product_id"`
	NewStock  int       `json:"new_stock"`
	OrderID   string    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}
