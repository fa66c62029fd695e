package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Wallet address length bounds for base58-encoded 32-byte public keys.
const (
	minWalletLen = 32
	maxWalletLen = 44
)

// ValidateWallet checks that an address is a plausible base58-encoded
// 32-byte public key. Settlement rejects trades from malformed addresses
// before touching any state.
func ValidateWallet(addr string) error {
	if len(addr) < minWalletLen || len(addr) > maxWalletLen {
		return fmt.Errorf("wallet address length %d outside [%d, %d]", len(addr), minWalletLen, maxWalletLen)
	}

	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode wallet address: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("wallet address decodes to %d bytes, want 32", len(decoded))
	}

	return nil
}
