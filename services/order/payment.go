package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/errutil"
)

type paymentClient struct {
	addr   string
	client *http.Client
}

// NewPaymentProcessor builds the HTTP payment transport from config. Both
// endpoints are idempotent keyed by order id, so the caller may safely
// repeat requests on retry.
func NewPaymentProcessor(cfg *config.Config) PaymentProcessor {
	return &paymentClient{
		addr:   cfg.Payment.Addr,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *paymentClient) CreateOrder(ctx context.Context, order *SKUOrder) error {
	body, err := json.Marshal(order)
	if err != nil {
		return errutil.Internal("failed to build request", err)
	}

	url := fmt.Sprintf("%s/v1/orders", c.addr)
	return c.post(ctx, url, body)
}

func (c *paymentClient) SendExternalTransaction(ctx context.Context, orderID string, wallet WalletType) error {
	url := fmt.Sprintf("%s/v1/orders/%s/transactions/%s", c.addr, orderID, wallet)
	return c.post(ctx, url, nil)
}

func (c *paymentClient) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errutil.Internal("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errutil.Unavailable("payment processor unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// the processor already holds this order
		return nil
	case resp.StatusCode >= 500:
		return errutil.Unavailable(fmt.Sprintf("payment processor returned %d", resp.StatusCode), nil)
	default:
		return errutil.BadRequest(fmt.Sprintf("payment processor returned %d", resp.StatusCode), nil)
	}
}
