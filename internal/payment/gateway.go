package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/apperr"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
)

type ChargeRequest struct {
	OrderID      string             `json:"order_id"`
	UserID       string             `json:"user_id"`
	Amount       decimal.Decimal    `json:"amount"`
	PaymentToken string             `json:"payment_token"`
	Items        []domain.OrderItem `json:"items"`
}

type ChargeResult struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"payment_id"`
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// HTTPGateway charges through the payment provider's REST endpoint.
// Errors are classified so the orchestrator retries only what the
// provider can plausibly recover from: timeouts, throttling and 5xx.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.KindPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Network errors and client timeouts may heal on retry.
		return nil, apperr.Newf(apperr.KindTransient, "payment request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result ChargeResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, apperr.Newf(apperr.KindPermanent, "malformed gateway response: %w", err)
		}
		if !result.Success {
			return nil, apperr.Newf(apperr.KindPermanent, "charge declined for order %s", req.OrderID)
		}
		return &result, nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, apperr.Newf(apperr.KindTransient, "gateway returned %d", resp.StatusCode)
	default:
		return nil, apperr.Newf(apperr.KindPermanent, "gateway returned %d", resp.StatusCode)
	}
}

var _ Gateway = (*HTTPGateway)(nil)

func (r ChargeRequest) String() string {
	return fmt.Sprintf("charge order=%s user=%s amount=%s", r.OrderID, r.UserID, r.Amount)
}
