package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrAlreadyProcessed = errors.New("order already processed")

// LedgerRepository is the processed-order ledger. Because queue delivery
// is at-least-once, the worker claims an order id here before touching
// inventory or the cart; a redelivered message that finds an existing
// claim skips those non-idempotent steps.
type LedgerRepository struct {
	client    *dynamodb.Client
	tableName string
}

func NewLedgerRepository(client *dynamodb.Client, tableName string) *LedgerRepository {
	return &LedgerRepository{
		client:    client,
		tableName: tableName,
	}
}

// Claim records that this consumer owns fulfillment side effects for the
// order. The conditional put makes the claim first-writer-wins across
// concurrent deliveries of the same message.
func (r *LedgerRepository) Claim(ctx context.Context, orderID string) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", orderID)},
			"claimed_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("failed to claim order %s: %w", orderID, err)
	}
	return nil
}
