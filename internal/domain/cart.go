package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is keyed by (user_id, product_id). Price is a snapshot taken
// when the item was added to the cart.
type CartItem struct {
	UserID      string          `json:"user_id" dynamodbav:"user_id"`
	ProductID   string          `json:"product_id" dynamodbav:"product_id"`
	ProductName string          `json:"product_name" dynamodbav:"product_name"`
	Quantity    int             `json:"quantity" dynamodbav:"quantity"`
	Price       decimal.Decimal `json:"price" dynamodbav:"price"`
	AddedAt     time.Time       `json:"added_at" dynamodbav:"added_at"`
}

// CartSummary is the result of validating a cart for checkout. Items are
// re-priced against the product table; Valid is false if any item is
// unavailable, stock is short, or the cart is empty.
type CartSummary struct {
	UserID      string          `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Valid       bool            `json:"valid"`
	Errors      []string        `json:"errors,omitempty"`
}
