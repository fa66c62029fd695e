package stub

import (
	"context"
	"fmt"
	"sync"

	"curvelaunch/internal/dex"
)

// Adapter implements dex.Adapter for testing and local runs. Pool
// addresses and tx hashes are deterministic per token.
type Adapter struct {
	mu       sync.Mutex
	Requests []dex.PoolRequest
	FailWith error // when set, every call fails with this error
}

// NewAdapter creates a new stub adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// CreatePoolAndSeedLiquidity records the request and returns a synthetic
// pool result, or FailWith when configured.
func (a *Adapter) CreatePoolAndSeedLiquidity(_ context.Context, req dex.PoolRequest) (*dex.PoolResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Requests = append(a.Requests, req)
	if a.FailWith != nil {
		return nil, a.FailWith
	}

	return &dex.PoolResult{
		PoolAddress: fmt.Sprintf("pool-%s", req.TokenID),
		TxHash:      fmt.Sprintf("tx-%s-%d", req.TokenID, len(a.Requests)),
	}, nil
}

// CallCount returns the number of pool creation calls received.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Requests)
}
