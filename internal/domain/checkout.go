package domain

import "github.com/shopspring/decimal"

// CheckoutRequest is the orchestrator's input. OrderID is caller-supplied
// and serves as the idempotency key for the whole pipeline. TotalAmount,
// when non-zero, is checked against the server-side repriced cart total;
// Items are accepted for wire compatibility but the cart store remains
// the pricing authority.
type CheckoutRequest struct {
	UserID       string          `json:"user_id" binding:"required"`
	OrderID      string          `json:"order_id" binding:"required"`
	Items        []OrderItem     `json:"items"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PaymentToken string          `json:"payment_token" binding:"required"`
	Email        string          `json:"email"`
}

// OrderMessage is the queue payload: the orchestrator's accumulated
// execution state handed to the fulfillment worker.
type OrderMessage struct {
	UserID          string       `json:"user_id"`
	OrderID         string       `json:"order_id"`
	Items           []OrderItem  `json:"items,omitempty"`
	CartValidation  *CartSummary `json:"cart_validation,omitempty"`
	PaymentID       string       `json:"payment_id"`
	RecipientEmail  string       `json:"recipient_email,omitempty"`
	ShippingAddress string       `json:"shipping_address,omitempty"`
}

// EffectiveItems returns the top-level items, falling back to the nested
// cart-validation payload when they are absent. Older producers put items
// only inside cart_validation.
func (m OrderMessage) EffectiveItems() []OrderItem {
	if len(m.Items) > 0 {
		return m.Items
	}
	if m.CartValidation != nil {
		return m.CartValidation.Items
	}
	return nil
}
