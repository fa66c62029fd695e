// Package dex defines the liquidity-pool creation contract used when a
// curve graduates, and an HTTP implementation against an external DEX
// service.
package dex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrExternalCallFailed is returned when the DEX service rejects or fails
// the pool creation call.
var ErrExternalCallFailed = errors.New("external dex call failed")

// PoolRequest describes the liquidity to seed into a new pool.
type PoolRequest struct {
	TokenID     string  `json:"token_id"`
	QuoteAmount float64 `json:"quote_amount"`
	TokenAmount float64 `json:"token_amount"`
}

// PoolResult identifies the created pool and the transaction that seeded it.
type PoolResult struct {
	PoolAddress string `json:"pool_address"`
	TxHash      string `json:"tx_hash"`
}

// Adapter creates liquidity pools on an external DEX.
type Adapter interface {
	// CreatePoolAndSeedLiquidity creates a pool for the token and deposits
	// the given quote and token amounts. The call is not retried here;
	// retry policy belongs to the caller.
	CreatePoolAndSeedLiquidity(ctx context.Context, req PoolRequest) (*PoolResult, error)
}

// HTTPAdapter talks to a DEX pool-creation service over HTTP.
type HTTPAdapter struct {
	baseURL string
	client  *resty.Client
}

// NewHTTPAdapter creates an adapter for the given service base URL.
func NewHTTPAdapter(baseURL string, timeout time.Duration) *HTTPAdapter {
	client := resty.New().SetTimeout(timeout)
	return &HTTPAdapter{
		baseURL: baseURL,
		client:  client,
	}
}

// CreatePoolAndSeedLiquidity implements Adapter.
func (a *HTTPAdapter) CreatePoolAndSeedLiquidity(ctx context.Context, req PoolRequest) (*PoolResult, error) {
	var result PoolResult

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(a.baseURL + "/v1/pools")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalCallFailed, err)
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrExternalCallFailed, resp.StatusCode())
	}

	if result.PoolAddress == "" || result.TxHash == "" {
		return nil, fmt.Errorf("%w: incomplete pool result", ErrExternalCallFailed)
	}

	return &result, nil
}
