// Package oracle provides USD price sources for vault tokens. Every price is a
// fixedpoint.Amount with fixedpoint.USDDecimals decimals.
package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// Source returns the current USD price of a token.
// Failures wrap domain.ErrPriceUnavailable; a missing price is never reported as zero.
type Source interface {
	PriceUsd(ctx context.Context, token common.Address) (fixedpoint.Amount, error)
}
