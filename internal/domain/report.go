package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// EarningsReport holds the earnings of one asset (vault), in tokens and USD.
type EarningsReport struct {
	AssetID         common.Address    `json:"assetId"`
	TokenID         common.Address    `json:"tokenId"`
	AmountEarned    fixedpoint.Amount `json:"amountEarned"`
	AmountEarnedUsd fixedpoint.Amount `json:"amountEarnedUsd"`
}

// AccountEarningsReport holds an account's per-vault earnings in position order.
type AccountEarningsReport struct {
	AccountID      common.Address    `json:"accountId"`
	PerVault       []EarningsReport  `json:"perVault"`
	TotalEarnedUsd fixedpoint.Amount `json:"totalEarnedUsd"`
}

// ExclusionReason explains why an asset is left out of a protocol total.
type ExclusionReason string

const (
	ExclusionNegativeEarnings    ExclusionReason = "negative_earnings"
	ExclusionImplausibleEarnings ExclusionReason = "implausible_earnings"
)

// ExcludedItem is an asset whose earnings were computed but filtered from the total.
type ExcludedItem struct {
	AssetID         common.Address     `json:"assetId"`
	TokenID         common.Address     `json:"tokenId"`
	Reason          ExclusionReason    `json:"reason"`
	AmountEarned    fixedpoint.Amount  `json:"amountEarned"`
	AmountEarnedUsd *fixedpoint.Amount `json:"amountEarnedUsd,omitempty"`
}

// Fault is an item that could not be computed.
type Fault struct {
	ItemID  string    `json:"itemId"`
	Kind    FaultKind `json:"kind"`
	Message string    `json:"message"`
}

// ProtocolEarningsReport is the protocol-wide earnings pass result.
type ProtocolEarningsReport struct {
	Assets         []EarningsReport  `json:"assets"`
	TotalEarnedUsd fixedpoint.Amount `json:"totalEarnedUsd"`
	Excluded       []ExcludedItem    `json:"excluded"`
	Faults         []Fault           `json:"faults"`
}

// Complete reports whether every asset was computed.
func (r ProtocolEarningsReport) Complete() bool {
	return len(r.Faults) == 0
}

// AccountsEarningsReport is the result of a multi-account pass.
type AccountsEarningsReport struct {
	Accounts []AccountEarningsReport `json:"accounts"`
	Faults   []Fault                 `json:"faults"`
}

// Complete reports whether every account was computed.
func (r AccountsEarningsReport) Complete() bool {
	return len(r.Faults) == 0
}
