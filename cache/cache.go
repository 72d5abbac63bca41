// Package cache defines the read-only view of auction state kept by the chain sync process.
package cache

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/connguard"
)

// UnlimitedApproval is the value the sync process records for approvals that are too
// big to track. It means no effective cap.
const UnlimitedApproval = "GTE_U32"

// ErrSyncedBlockNotFound is returned when no synced block was recorded for a settlement
// contract.
var ErrSyncedBlockNotFound = errors.New("synced block not found")

// MaxAmount is the biggest representable amount, used for unlimited approvals.
var MaxAmount = new(big.Int).Set(math.MaxBig256)

// SignerFunds is the last observed spending approval and token balance of a signer.
type SignerFunds struct {
	Approved *big.Int
	Balance  *big.Int
}

// Cache provides auction state lookups. A false bool result means the sync process
// hasn't recorded the entity yet, which isn't an error.
type Cache interface {
	connguard.Connectable

	GetAuction(ctx context.Context, chainID string, auction common.Address, name string) (bid.Auction, bool, error)
	GetSyncedBlock(ctx context.Context, chainID string, settlementContract common.Address) (uint64, error)
	GetSignerApproveAndBalAmts(
		ctx context.Context,
		chainID string,
		settlementContract, signer common.Address) (SignerFunds, bool, error)
}

// ParseApproval parses an approval amount, translating UnlimitedApproval to MaxAmount.
func ParseApproval(s string) (*big.Int, bool) {
	if s == UnlimitedApproval {
		return new(big.Int).Set(MaxAmount), true
	}
	return ParseAmount(s)
}

// ParseAmount parses a non-negative 256-bit amount in decimal or 0x-prefixed hex.
func ParseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	n, ok := math.ParseBig256(s)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
