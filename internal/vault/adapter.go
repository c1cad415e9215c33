package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// Adapter exposes the static and dynamic attributes of one deployed vault.
// Share amounts and price per share carry the vault's decimals, which equal its token's.
type Adapter struct {
	c *contract
}

// NewAdapter binds an adapter to the vault at address.
func NewAdapter(caller ethereum.ContractCaller, address common.Address) (*Adapter, error) {
	c, err := newContract(caller, address, vaultABI)
	if err != nil {
		return nil, fmt.Errorf("vault %s: %w", address.Hex(), err)
	}
	return &Adapter{c: c}, nil
}

func (a *Adapter) Address() common.Address { return a.c.address }

// Info reads the static attributes: underlying token, decimals, name and symbol.
func (a *Adapter) Info(ctx context.Context) (domain.Vault, error) {
	token, err := a.c.callAddress(ctx, "token")
	if err != nil {
		return domain.Vault{}, err
	}
	decimals, err := a.c.callUint8(ctx, "decimals")
	if err != nil {
		return domain.Vault{}, err
	}
	name, err := a.c.callString(ctx, "name")
	if err != nil {
		return domain.Vault{}, err
	}
	symbol, err := a.c.callString(ctx, "symbol")
	if err != nil {
		return domain.Vault{}, err
	}
	return domain.Vault{Address: a.c.address, Token: token, Name: name, Symbol: symbol, Decimals: decimals}, nil
}

func (a *Adapter) PricePerShare(ctx context.Context, decimals uint8) (fixedpoint.Amount, error) {
	return a.amount(ctx, decimals, "pricePerShare")
}

func (a *Adapter) TotalSupply(ctx context.Context, decimals uint8) (fixedpoint.Amount, error) {
	return a.amount(ctx, decimals, "totalSupply")
}

func (a *Adapter) TotalAssets(ctx context.Context, decimals uint8) (fixedpoint.Amount, error) {
	return a.amount(ctx, decimals, "totalAssets")
}

// BalanceOf returns the share balance of account.
func (a *Adapter) BalanceOf(ctx context.Context, decimals uint8, account common.Address) (fixedpoint.Amount, error) {
	return a.amount(ctx, decimals, "balanceOf", account)
}

func (a *Adapter) amount(ctx context.Context, decimals uint8, method string, args ...any) (fixedpoint.Amount, error) {
	v, err := a.c.callBig(ctx, method, args...)
	if err != nil {
		return fixedpoint.Amount{}, err
	}
	return fixedpoint.FromRaw(v, uint(decimals)), nil
}
