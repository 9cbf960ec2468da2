package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/infrastructure/config"
)

// Client triggers renewal charge attempts against the payment gateway's
// internal API. Fire-and-observe: the gateway settles the charge and updates
// the order asynchronously; callers re-read order state rather than trusting
// this call's result.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type chargeRequest struct {
	OrderID       int64  `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// TriggerRenewalPayment asks the gateway to attempt the renewal charge.
func (c *Client) TriggerRenewalPayment(ctx context.Context, order *entity.Order) error {
	body, err := json.Marshal(chargeRequest{
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.Total,
		Currency:      order.Currency,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/internal/v1/renewals/charge", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	// 2xx means the charge attempt was accepted, not that it succeeded.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	c.logger.Debug("renewal charge triggered", zap.Int64("order_id", order.ID))
	return nil
}
