package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type NotificationType string

const (
	NotificationOrderConfirmation NotificationType = "order_confirmation"
	NotificationOrderStatusUpdate NotificationType = "order_status_update"
	NotificationPromotional       NotificationType = "promotional"
	NotificationLowStockAlert     NotificationType = "low_stock_alert"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type NotificationRequest struct {
	UserID           string           `json:"user_id"`
	NotificationType NotificationType `json:"notification_type"`
	RecipientEmail   string           `json:"recipient_email,omitempty"`
	RecipientPhone   string           `json:"recipient_phone,omitempty"`
	OrderData        OrderData        `json:"order_data"`
}

type OrderData struct {
	OrderID         string          `json:"order_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	Timestamp       time.Time       `json:"timestamp"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
}

// NotificationPreference maps channel -> notification type -> enabled.
type NotificationPreference struct {
	UserID   string                               `json:"user_id" dynamodbav:"user_id"`
	Channels map[Channel]map[NotificationType]bool `json:"channels" dynamodbav:"channels"`
}

// DefaultPreference is used when a user has no stored preferences:
// email on for confirmations and status updates, off for promotional;
// SMS on for status updates only.
func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID: userID,
		Channels: map[Channel]map[NotificationType]bool{
			ChannelEmail: {
				NotificationOrderConfirmation: true,
				NotificationOrderStatusUpdate: true,
				NotificationPromotional:       false,
			},
			ChannelSMS: {
				NotificationOrderConfirmation: false,
				NotificationOrderStatusUpdate: true,
				NotificationPromotional:       false,
			},
		},
	}
}

// Enabled reports whether the given channel is enabled for the given type,
// falling back to the defaults for anything the stored map does not cover.
func (p NotificationPreference) Enabled(ch Channel, nt NotificationType) bool {
	if types, ok := p.Channels[ch]; ok {
		if enabled, ok := types[nt]; ok {
			return enabled
		}
	}
	return DefaultPreference(p.UserID).Channels[ch][nt]
}

type ChannelResult struct {
	Channel  Channel `json:"channel"`
	Success  bool    `json:"success"`
	Attempts int     `json:"attempts"`
	Error    string  `json:"error,omitempty"`
}

// NotificationAnalyticsRecord is append-only; one record per dispatch.
type NotificationAnalyticsRecord struct {
	NotificationID   string           `json:"notification_id" dynamodbav:"notification_id"`
	UserID           string           `json:"user_id" dynamodbav:"user_id"`
	NotificationType NotificationType `json:"notification_type" dynamodbav:"notification_type"`
	Channels         []Channel        `json:"channels" dynamodbav:"channels"`
	SuccessCount     int              `json:"success_count" dynamodbav:"success_count"`
	FailureCount     int              `json:"failure_count" dynamodbav:"failure_count"`
	Timestamp        time.Time        `json:"timestamp" dynamodbav:"timestamp"`
}
