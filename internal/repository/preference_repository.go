package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
)

type PreferenceRepository struct {
	client         *dynamodb.Client
	prefTableName  string
	analyticsTable string
}

func NewPreferenceRepository(client *dynamodb.Client, prefTableName, analyticsTable string) *PreferenceRepository {
	return &PreferenceRepository{
		client:         client,
		prefTableName:  prefTableName,
		analyticsTable: analyticsTable,
	}
}

// GetPreference returns the user's stored notification preferences, or
// the documented defaults when none exist.
func (r *PreferenceRepository) GetPreference(ctx context.Context, userID string) (domain.NotificationPreference, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.prefTableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", userID)},
			"SK": &types.AttributeValueMemberS{Value: "PREFERENCES"},
		},
	})
	if err != nil {
		return domain.NotificationPreference{}, err
	}
	if len(out.Item) == 0 {
		return domain.DefaultPreference(userID), nil
	}

	var pref domain.NotificationPreference
	if err := attributevalue.UnmarshalMap(out.Item, &pref); err != nil {
		return domain.NotificationPreference{}, err
	}
	if pref.Channels == nil {
		return domain.DefaultPreference(userID), nil
	}
	return pref, nil
}

// RecordAnalytics appends one dispatch summary to the analytics ledger.
func (r *PreferenceRepository) RecordAnalytics(ctx context.Context, rec domain.NotificationAnalyticsRecord) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics record: %w", err)
	}

	av["PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("NOTIFICATION#%s", rec.NotificationID)}
	av["SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", rec.UserID)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.analyticsTable),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to record analytics: %w", err)
	}
	return nil
}
