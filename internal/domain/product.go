package domain

import "github.com/shopspring/decimal"

type Product struct {
	ProductID string          `json:"product_id" dynamodbav:"product_id"`
	Name      string          `json:"name" dynamodbav:"name"`
	Price     decimal.Decimal `json:"price" dynamodbav:"price"`
	Stock     int             `json:"stock" dynamodbav:"stock"`
	IsActive  bool            `json:"is_active" dynamodbav:"is_active"`
}

// InventoryUpdateResult is the per-item outcome of a stock decrement.
// A failed decrement does not fail the whole order; the worker records
// the outcome and keeps going.
type InventoryUpdateResult struct {
	ProductID       string `json:"product_id"`
	QuantityOrdered int    `json:"quantity_ordered"`
	NewStock        *int   `json:"new_stock,omitempty"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
}
