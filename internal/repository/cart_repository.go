package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
)

const batchDeleteChunk = 25 // BatchWriteItem hard limit

type productReader interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type CartRepository struct {
	client    *dynamodb.Client
	tableName string
	products  productReader
}

func NewCartRepository(client *dynamodb.Client, tableName string, products productReader) *CartRepository {
	return &CartRepository{
		client:    client,
		tableName: tableName,
		products:  products,
	}
}

func (r *CartRepository) GetCart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", userID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query cart for %s: %w", userID, err)
	}

	items := make([]domain.CartItem, 0, len(out.Items))
	for _, av := range out.Items {
		var item domain.CartItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ValidateForCheckout loads the user's cart and re-prices it against the
// product table. The summary is invalid when the cart is empty, an item
// is inactive or missing, or current stock cannot cover the quantity.
func (r *CartRepository) ValidateForCheckout(ctx context.Context, userID string) (*domain.CartSummary, error) {
	cartItems, err := r.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &domain.CartSummary{UserID: userID, Valid: true}
	if len(cartItems) == 0 {
		summary.Valid = false
		summary.Errors = append(summary.Errors, "cart is empty")
		return summary, nil
	}

	subtotal := decimal.Zero
	for _, ci := range cartItems {
		product, err := r.products.GetProduct(ctx, ci.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			summary.Valid = false
			summary.Errors = append(summary.Errors, fmt.Sprintf("product %s is no longer available", ci.ProductID))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			summary.Valid = false
			summary.Errors = append(summary.Errors, fmt.Sprintf("product %s is no longer available", ci.ProductID))
			continue
		}
		if product.Stock < ci.Quantity {
			summary.Valid = false
			summary.Errors = append(summary.Errors, fmt.Sprintf("product %s has %d in stock, %d requested", ci.ProductID, product.Stock, ci.Quantity))
			continue
		}

		line := product.Price.Mul(decimal.NewFromInt(int64(ci.Quantity)))
		summary.Items = append(summary.Items, domain.OrderItem{
			ProductID:   ci.ProductID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    ci.Quantity,
			Subtotal:    domain.Round2(line),
		})
		subtotal = subtotal.Add(line)
	}

	summary.Subtotal = domain.Round2(subtotal)
	summary.TaxAmount = domain.Round2(summary.Subtotal.Mul(domain.TaxRate))
	summary.TotalAmount = domain.Round2(summary.Subtotal.Add(summary.TaxAmount))
	return summary, nil
}

// ClearCart deletes every cart item for the user via batched writes.
// Unprocessed keys are resubmitted until DynamoDB accepts them all.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	items, err := r.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", userID)},
					"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("PRODUCT#%s", item.ProductID)},
				},
			},
		})
	}

	for start := 0; start < len(requests); start += batchDeleteChunk {
		end := start + batchDeleteChunk
		if end > len(requests) {
			end = len(requests)
		}

		batch := requests[start:end]
		for len(batch) > 0 {
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					r.tableName: batch,
				},
			})
			if err != nil {
				return fmt.Errorf("failed to clear cart for %s: %w", userID, err)
			}
			batch = out.UnprocessedItems[r.tableName]
		}
	}

	return nil
}
