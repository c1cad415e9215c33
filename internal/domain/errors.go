package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

var (
	// ErrEarningsUnderflow indicates an account's positive flows do not cover its negative flows in a vault.
	ErrEarningsUnderflow = errors.New("earnings underflow")
	// ErrPriceUnavailable indicates the oracle could not price a token.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrSubgraphUnreachable indicates an indexer query failed or timed out.
	ErrSubgraphUnreachable = errors.New("subgraph unreachable")
	// ErrVaultNotFound indicates the indexer has no vault with the requested id.
	ErrVaultNotFound = errors.New("vault not found")
)

// FaultKind is the machine-readable kind of a per-item failure.
type FaultKind string

const (
	FaultUnderflow           FaultKind = "underflow"
	FaultEarningsUnderflow   FaultKind = "earnings_underflow"
	FaultPriceUnavailable    FaultKind = "price_unavailable"
	FaultSubgraphUnreachable FaultKind = "subgraph_unreachable"
	FaultNotFound            FaultKind = "not_found"
	FaultCancelled           FaultKind = "cancelled"
	FaultUnknown             FaultKind = "unknown"
)

// ClassifyFault maps an error to its FaultKind.
func ClassifyFault(err error) FaultKind {
	switch {
	case errors.Is(err, ErrEarningsUnderflow):
		return FaultEarningsUnderflow
	case errors.Is(err, fixedpoint.ErrUnderflow):
		return FaultUnderflow
	case errors.Is(err, ErrPriceUnavailable):
		return FaultPriceUnavailable
	case errors.Is(err, ErrSubgraphUnreachable):
		return FaultSubgraphUnreachable
	case errors.Is(err, ErrVaultNotFound):
		return FaultNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FaultCancelled
	default:
		return FaultUnknown
	}
}

// NewFault builds a Fault for itemID from err.
func NewFault(itemID string, err error) Fault {
	return Fault{ItemID: itemID, Kind: ClassifyFault(err), Message: err.Error()}
}

// VaultError attaches account and vault identity to a per-vault failure.
// Account is the zero address for protocol-level computations.
type VaultError struct {
	Account common.Address
	Vault   common.Address
	Err     error
}

func (e *VaultError) Error() string {
	if e.Account == (common.Address{}) {
		return fmt.Sprintf("vault %s: %v", e.Vault.Hex(), e.Err)
	}
	return fmt.Sprintf("account %s vault %s: %v", e.Account.Hex(), e.Vault.Hex(), e.Err)
}

func (e *VaultError) Unwrap() error {
	return e.Err
}
