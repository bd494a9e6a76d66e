package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/errutil"
)

// ClaimRequest submits a batch of blinded credentials for signing, keyed by
// trigger so the issuer can deduplicate repeated claims.
type ClaimRequest struct {
	TriggerID    string      `json:"trigger_id"`
	TriggerType  TriggerType `json:"trigger_type"`
	BlindedCreds []string    `json:"blinded_creds"`
}

type ClaimResponse struct {
	SignedCreds   []string  `json:"signed_creds"`
	PublicKey     string    `json:"public_key"`
	BatchProof    string    `json:"batch_proof"`
	ValuePerToken float64   `json:"value_per_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// IssuerClient is the signing server transport.
type IssuerClient interface {
	Claim(ctx context.Context, req *ClaimRequest) (*ClaimResponse, error)
	PublicKeys(ctx context.Context) ([]string, error)
}

type issuerClient struct {
	addr   string
	client *http.Client
}

func NewIssuerClient(cfg *config.Config) IssuerClient {
	return &issuerClient{
		addr:   cfg.Issuer.Addr,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *issuerClient) Claim(ctx context.Context, claim *ClaimRequest) (*ClaimResponse, error) {
	body, err := json.Marshal(claim)
	if err != nil {
		return nil, errutil.Internal("failed to build claim request", err)
	}

	url := fmt.Sprintf("%s/v1/credentials", c.addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errutil.Internal("failed to build claim request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errutil.Unavailable("issuer unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		// claim registered but signatures not ready yet
		return nil, errutil.NotReady("signed credentials not ready", nil)
	case resp.StatusCode >= 500:
		return nil, errutil.Unavailable(fmt.Sprintf("issuer returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, errutil.BadRequest(fmt.Sprintf("issuer returned %d", resp.StatusCode), nil)
	}

	var claimResp ClaimResponse
	if err := json.NewDecoder(resp.Body).Decode(&claimResp); err != nil {
		return nil, errutil.Unavailable("failed to decode claim response", err)
	}
	return &claimResp, nil
}

func (c *issuerClient) PublicKeys(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/v1/issuers/publickeys", c.addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errutil.Internal("failed to build issuer request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errutil.Unavailable("issuer unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errutil.Unavailable(fmt.Sprintf("issuer returned %d", resp.StatusCode), nil)
	}

	var keys []string
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, errutil.Unavailable("failed to decode issuer public keys", err)
	}
	return keys, nil
}

// KeyCache caches the issuer public key set for a configured TTL and
// collapses concurrent refreshes into a single fetch.
type KeyCache struct {
	client IssuerClient
	ttl    time.Duration

	mu        sync.RWMutex
	keys      []string
	fetchedAt time.Time

	group singleflight.Group
}

func NewKeyCache(cfg *config.Config, client IssuerClient) *KeyCache {
	return &KeyCache{
		client: client,
		ttl:    cfg.Issuer.KeyCacheTTL,
	}
}

func (c *KeyCache) Keys(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	if len(c.keys) > 0 && time.Since(c.fetchedAt) < c.ttl {
		keys := c.keys
		c.mu.RUnlock()
		return keys, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do("issuer-keys", func() (any, error) {
		keys, err := c.client.PublicKeys(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}
