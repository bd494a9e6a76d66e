package confirmation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/errutil"
)

// ConfirmationClient is the confirmation server transport. Calls return the
// HTTP status code so the redeemer can apply its retry policy; a non-nil
// error means the request never produced a response.
type ConfirmationClient interface {
	CreateConfirmation(ctx context.Context, confirmation *Confirmation) (int, error)
	FetchPaymentToken(ctx context.Context, confirmation *Confirmation) (string, int, error)
}

type confirmationClient struct {
	addr   string
	client *http.Client
}

func NewConfirmationClient(cfg *config.Config) ConfirmationClient {
	return &confirmationClient{
		addr:   cfg.Confirmation.Addr,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *confirmationClient) CreateConfirmation(ctx context.Context, confirmation *Confirmation) (int, error) {
	body, err := json.Marshal(confirmation)
	if err != nil {
		return 0, errutil.Internal("failed to build confirmation request", err)
	}

	url := fmt.Sprintf("%s/v2/confirmations/%s", c.addr, confirmation.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, errutil.Internal("failed to build confirmation request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errutil.Unavailable("confirmation server unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (c *confirmationClient) FetchPaymentToken(ctx context.Context, confirmation *Confirmation) (string, int, error) {
	url := fmt.Sprintf("%s/v2/confirmations/%s/paymentToken", c.addr, confirmation.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, errutil.Internal("failed to build payment token request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, errutil.Unavailable("confirmation server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", resp.StatusCode, nil
	}

	var payload struct {
		PaymentToken string `json:"payment_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", resp.StatusCode, errutil.Unavailable("failed to decode payment token", err)
	}
	return payload.PaymentToken, resp.StatusCode, nil
}
