package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	client    *dynamodb.Client
	tableName string
}

func NewOrderRepository(client *dynamodb.Client, tableName string) *OrderRepository {
	return &OrderRepository{
		client:    client,
		tableName: tableName,
	}
}

// PutOrder writes the order record. No condition expression: the put is
// idempotent by order id so a redelivered queue message overwrites the
// same record instead of erroring.
func (r *OrderRepository) PutOrder(ctx context.Context, order *domain.Order) error {
	av, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	av["PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", order.OrderID)}
	av["SK"] = &types.AttributeValueMemberS{Value: "METADATA"}
	av["GSI1PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", order.UserID)}
	av["GSI1SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", order.CreatedAt.Format("2006-01-02T15:04:05Z"))}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", orderID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrOrderNotFound
	}

	var order domain.Order
	if err := attributevalue.UnmarshalMap(out.Item, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves an order to a terminal status. The condition keeps
// the transition one-way: only a PROCESSING order can move, so a late
// redelivery can never drag COMPLETED back to FAILED or vice versa.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, processingErr string) error {
	update := "SET #status = :status, updated_at = :now"
	values := map[string]types.AttributeValue{
		":status":     &types.AttributeValueMemberS{Value: string(status)},
		":now":        &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		":processing": &types.AttributeValueMemberS{Value: string(domain.OrderStatusProcessing)},
	}
	names := map[string]string{"#status": "status"}
	if processingErr != "" {
		update += ", #error = :error"
		names["#error"] = "error"
		values[":error"] = &types.AttributeValueMemberS{Value: processingErr}
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", orderID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("#status = :processing"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Already finalized by an earlier delivery.
			return nil
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return nil
}

// MarkFailed records a failure even when the order record never landed:
// the upsert creates a stub item if the initial put failed, while the
// condition keeps finalized orders untouched.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderID, userID, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", orderID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		UpdateExpression: aws.String("SET #status = :status, #error = :error, order_id = :order, user_id = :user, " +
			"updated_at = :now, created_at = if_not_exists(created_at, :now), " +
			"GSI1PK = :gsi1pk, GSI1SK = if_not_exists(GSI1SK, :gsi1sk)"),
		ConditionExpression: aws.String("attribute_not_exists(#status) OR #status = :processing"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#error":  "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: string(domain.OrderStatusFailed)},
			":error":      &types.AttributeValueMemberS{Value: reason},
			":order":      &types.AttributeValueMemberS{Value: orderID},
			":user":       &types.AttributeValueMemberS{Value: userID},
			":now":        &types.AttributeValueMemberS{Value: now},
			":processing": &types.AttributeValueMemberS{Value: string(domain.OrderStatusProcessing)},
			":gsi1pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", userID)},
			":gsi1sk":     &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", now)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("failed to mark order failed: %w", err)
	}

	return nil
}
