package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusFailed     OrderStatus = "FAILED"
)

// TaxRate is applied when a message carries no pre-computed totals.
var TaxRate = decimal.NewFromFloat(0.08)

type Order struct {
	OrderID      string          `json:"order_id" dynamodbav:"order_id"`
	UserID       string          `json:"user_id" dynamodbav:"user_id"`
	Items        []OrderItem     `json:"items" dynamodbav:"items"`
	Subtotal     decimal.Decimal `json:"subtotal" dynamodbav:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount" dynamodbav:"tax_amount"`
	ShippingCost decimal.Decimal `json:"shipping_cost" dynamodbav:"shipping_cost"`
	TotalAmount  decimal.Decimal `json:"total_amount" dynamodbav:"total_amount"`
	Status       OrderStatus     `json:"status" dynamodbav:"status"`
	PaymentID    string          `json:"payment_id,omitempty" dynamodbav:"payment_id,omitempty"`
	Error        string          `json:"error,omitempty" dynamodbav:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" dynamodbav:"updated_at"`
}

type OrderItem struct {
	ProductID   string          `json:"product_id" dynamodbav:"product_id"`
	ProductName string          `json:"product_name" dynamodbav:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price" dynamodbav:"unit_price"`
	Quantity    int             `json:"quantity" dynamodbav:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal" dynamodbav:"subtotal"`
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeTotals fills subtotal, tax and total from the order's items.
// Each line subtotal is unit price times quantity; tax is TaxRate applied
// to the rounded subtotal; total = subtotal + tax + shipping.
func (o *Order) ComputeTotals() {
	subtotal := decimal.Zero
	for i := range o.Items {
		line := o.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(o.Items[i].Quantity)))
		o.Items[i].Subtotal = Round2(line)
		subtotal = subtotal.Add(line)
	}
	o.Subtotal = Round2(subtotal)
	o.TaxAmount = Round2(o.Subtotal.Mul(TaxRate))
	o.TotalAmount = Round2(o.Subtotal.Add(o.TaxAmount).Add(o.ShippingCost))
}
