package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// Vault is a static registry entry describing a vault and its underlying token.
type Vault struct {
	Address  common.Address `json:"address"`
	Token    common.Address `json:"token"`
	Name     string         `json:"name,omitempty"`
	Symbol   string         `json:"symbol,omitempty"`
	Decimals uint8          `json:"decimals"`
}

// VaultSnapshot is a point-in-time read of a vault's accounting state.
// All three amounts carry the token's decimals.
type VaultSnapshot struct {
	VaultID       common.Address    `json:"vaultId"`
	TokenID       common.Address    `json:"tokenId"`
	TokenDecimals uint8             `json:"tokenDecimals"`
	SharesSupply  fixedpoint.Amount `json:"sharesSupply"`
	BalanceTokens fixedpoint.Amount `json:"balanceTokens"`
	PricePerShare fixedpoint.Amount `json:"pricePerShare"`
}

// TotalTokens returns pricePerShare × sharesSupply expressed in token decimals.
func (s VaultSnapshot) TotalTokens() fixedpoint.Amount {
	return s.PricePerShare.Mul(s.SharesSupply).Rescale(uint(s.TokenDecimals))
}

// SnapshotFilter narrows a protocol-wide snapshot query.
// An empty IDs list selects every vault. MinBalanceTokens is in raw token units; nil means no bound.
type SnapshotFilter struct {
	IDs              []common.Address
	MinBalanceTokens *big.Int
	PageSize         int
}
