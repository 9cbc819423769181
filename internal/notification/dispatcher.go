package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
)

const channelAttempts = 3

// PreferenceStore is the preference/analytics store contract.
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string) (domain.NotificationPreference, error)
	RecordAnalytics(ctx context.Context, rec domain.NotificationAnalyticsRecord) error
}

// Dispatcher fans one notification request out to the user's enabled
// channels. Channels send concurrently and fail independently; a
// channel retries up to three times with no delay between attempts.
// The whole dispatch is best-effort from the caller's point of view.
type Dispatcher struct {
	prefs  PreferenceStore
	email  EmailSender // nil when email is not configured
	sms    SMSSender   // nil when SMS is not configured
	logger *zap.Logger
}

func NewDispatcher(prefs PreferenceStore, email EmailSender, sms SMSSender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		prefs:  prefs,
		email:  email,
		sms:    sms,
		logger: logger,
	}
}

// Dispatch sends req on every enabled channel and records one analytics
// record summarizing the outcome. The returned slice has one entry per
// attempted channel.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.NotificationRequest) []domain.ChannelResult {
	// Low-stock alerts are operator-facing, not customer-facing: they
	// always go out on every channel with a recipient, and no preference
	// lookup is made.
	operatorAlert := req.NotificationType == domain.NotificationLowStockAlert

	var pref domain.NotificationPreference
	if !operatorAlert {
		var err error
		pref, err = d.prefs.GetPreference(ctx, req.UserID)
		if err != nil {
			d.logger.Warn("preference lookup failed, using defaults",
				zap.String("user_id", req.UserID),
				zap.Error(err))
			pref = domain.DefaultPreference(req.UserID)
		}
	}
	enabled := func(ch domain.Channel) bool {
		return operatorAlert || pref.Enabled(ch, req.NotificationType)
	}

	type send struct {
		channel domain.Channel
		fn      func(context.Context) error
	}
	var sends []send

	if d.email != nil && req.RecipientEmail != "" && enabled(domain.ChannelEmail) {
		subject, body := renderEmail(req)
		sends = append(sends, send{domain.ChannelEmail, func(ctx context.Context) error {
			return d.email.SendEmail(ctx, req.RecipientEmail, subject, body)
		}})
	}
	if d.sms != nil && req.RecipientPhone != "" && enabled(domain.ChannelSMS) {
		message := renderSMS(req)
		sends = append(sends, send{domain.ChannelSMS, func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, req.RecipientPhone, message)
		}})
	}

	results := make([]domain.ChannelResult, len(sends))
	var wg sync.WaitGroup
	for i, s := range sends {
		wg.Add(1)
		go func(i int, s send) {
			defer wg.Done()
			results[i] = d.sendWithRetry(ctx, s.channel, s.fn)
		}(i, s)
	}
	wg.Wait()

	d.recordAnalytics(ctx, req, results)
	return results
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, channel domain.Channel, fn func(context.Context) error) domain.ChannelResult {
	result := domain.ChannelResult{Channel: channel}
	var lastErr error
	for attempt := 1; attempt <= channelAttempts; attempt++ {
		result.Attempts = attempt
		if lastErr = fn(ctx); lastErr == nil {
			result.Success = true
			return result
		}
		d.logger.Warn("channel send failed",
			zap.String("channel", string(channel)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	result.Error = lastErr.Error()
	return result
}

func (d *Dispatcher) recordAnalytics(ctx context.Context, req domain.NotificationRequest, results []domain.ChannelResult) {
	rec := domain.NotificationAnalyticsRecord{
		NotificationID:   uuid.New().String(),
		UserID:           req.UserID,
		NotificationType: req.NotificationType,
		Timestamp:        time.Now().UTC(),
	}
	for _, r := range results {
		rec.Channels = append(rec.Channels, r.Channel)
		if r.Success {
			rec.SuccessCount++
		} else {
			rec.FailureCount++
		}
	}

	if err := d.prefs.RecordAnalytics(ctx, rec); err != nil {
		d.logger.Warn("failed to record notification analytics",
			zap.String("notification_id", rec.NotificationID),
			zap.Error(err))
	}
}

func renderEmail(req domain.NotificationRequest) (subject, body string) {
	od := req.OrderData
	switch req.NotificationType {
	case domain.NotificationOrderConfirmation:
		subject = fmt.Sprintf("Order %s confirmed", od.OrderID)
	case domain.NotificationLowStockAlert:
		subject = fmt.Sprintf("Low stock alert (order %s)", od.OrderID)
	default:
		subject = fmt.Sprintf("Order %s: %s", od.OrderID, od.Status)
	}

	body = fmt.Sprintf("Order %s\nStatus: %s\nSubtotal: %s\nTax: %s\nTotal: %s\n",
		od.OrderID, od.Status, od.Subtotal, od.TaxAmount, od.TotalAmount)
	for _, item := range od.Items {
		body += fmt.Sprintf("- %s x%d @ %s\n", item.ProductName, item.Quantity, item.UnitPrice)
	}
	return subject, body
}

func renderSMS(req domain.NotificationRequest) string {
	od := req.OrderData
	return fmt.Sprintf("Order %s is %s. Total %s.", od.OrderID, od.Status, od.TotalAmount)
}
