package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// InteractionKind classifies an account ledger entry.
type InteractionKind string

const (
	InteractionDeposit        InteractionKind = "deposit"
	InteractionWithdrawal     InteractionKind = "withdrawal"
	InteractionSharesSent     InteractionKind = "shares_sent"
	InteractionSharesReceived InteractionKind = "shares_received"
)

// InteractionRecord is an immutable ledger entry for one account and vault.
type InteractionRecord struct {
	Kind        InteractionKind   `json:"kind"`
	VaultID     common.Address    `json:"vaultId"`
	TokenAmount fixedpoint.Amount `json:"tokenAmount"`
}

// PositionSource is the raw data needed to value an account's position in one vault.
type PositionSource struct {
	VaultID       common.Address    `json:"vaultId"`
	TokenID       common.Address    `json:"tokenId"`
	TokenDecimals uint8             `json:"tokenDecimals"`
	BalanceShares fixedpoint.Amount `json:"balanceShares"`
	PricePerShare fixedpoint.Amount `json:"pricePerShare"`
}

// AccountInteractions holds every ledger entry and position source for one account.
type AccountInteractions struct {
	AccountID      common.Address      `json:"accountId"`
	Deposits       []InteractionRecord `json:"deposits"`
	Withdrawals    []InteractionRecord `json:"withdrawals"`
	SharesSent     []InteractionRecord `json:"sharesSent"`
	SharesReceived []InteractionRecord `json:"sharesReceived"`
	Positions      []PositionSource    `json:"vaultPositions"`
}

// VaultPosition is an account's current holding in a vault. It is derived on every query.
type VaultPosition struct {
	AccountID     common.Address    `json:"accountId"`
	VaultID       common.Address    `json:"vaultId"`
	BalanceShares fixedpoint.Amount `json:"balanceShares"`
	TokenAmount   fixedpoint.Amount `json:"tokenAmount"`
}

// NewVaultPosition values src at its price per share:
// tokenAmount = balanceShares × pricePerShare / 10^tokenDecimals.
func NewVaultPosition(account common.Address, src PositionSource) VaultPosition {
	return VaultPosition{
		AccountID:     account,
		VaultID:       src.VaultID,
		BalanceShares: src.BalanceShares,
		TokenAmount:   src.BalanceShares.Mul(src.PricePerShare).Rescale(uint(src.TokenDecimals)),
	}
}
