package subgraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// DefaultPageSize is the indexer's maximum page size.
const DefaultPageSize = 1000

// ErrNotFound is returned when the indexer has no vault with the requested id.
var ErrNotFound = domain.ErrVaultNotFound

type tokenJSON struct {
	ID       string `json:"id"`
	Decimals int    `json:"decimals"`
}

type updateJSON struct {
	PricePerShare string `json:"pricePerShare"`
}

type vaultJSON struct {
	ID            string      `json:"id"`
	Token         tokenJSON   `json:"token"`
	SharesSupply  string      `json:"sharesSupply"`
	BalanceTokens string      `json:"balanceTokens"`
	LatestUpdate  *updateJSON `json:"latestUpdate"`
}

// QueryVaultSnapshot returns the current accounting state of one vault.
func (c *Client) QueryVaultSnapshot(ctx context.Context, vault common.Address) (domain.VaultSnapshot, error) {
	var data struct {
		Vault *vaultJSON `json:"vault"`
	}
	if err := c.query(ctx, vaultQuery, map[string]any{"id": entityID(vault)}, &data); err != nil {
		return domain.VaultSnapshot{}, fmt.Errorf("querying vault %s: %w", vault.Hex(), err)
	}
	if data.Vault == nil {
		return domain.VaultSnapshot{}, fmt.Errorf("vault %s: %w", vault.Hex(), ErrNotFound)
	}
	return data.Vault.snapshot()
}

// QueryAllVaultSnapshots pages through every vault matching filter, in id order.
func (c *Client) QueryAllVaultSnapshots(ctx context.Context, filter domain.SnapshotFilter) ([]domain.VaultSnapshot, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}

	where := map[string]any{}
	if len(filter.IDs) > 0 {
		where["id_in"] = lo.Map(filter.IDs, func(a common.Address, _ int) string { return entityID(a) })
	}
	if filter.MinBalanceTokens != nil {
		where["balanceTokens_gte"] = filter.MinBalanceTokens.String()
	}

	var snapshots []domain.VaultSnapshot
	for skip := 0; ; skip += pageSize {
		var data struct {
			Vaults []vaultJSON `json:"vaults"`
		}
		vars := map[string]any{"first": pageSize, "skip": skip, "where": where}
		if err := c.query(ctx, vaultsQuery, vars, &data); err != nil {
			return nil, fmt.Errorf("querying vaults (skip %d): %w", skip, err)
		}

		for _, v := range data.Vaults {
			s, err := v.snapshot()
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, s)
		}

		if len(data.Vaults) < pageSize {
			break
		}
	}

	return snapshots, nil
}

func (v vaultJSON) snapshot() (domain.VaultSnapshot, error) {
	decimals, err := tokenDecimals(v.Token.Decimals)
	if err != nil {
		return domain.VaultSnapshot{}, fmt.Errorf("vault %s: %w", v.ID, err)
	}
	d := uint(decimals)

	supply, err := fixedpoint.ParseRaw(v.SharesSupply, d)
	if err != nil {
		return domain.VaultSnapshot{}, fmt.Errorf("vault %s sharesSupply: %w", v.ID, err)
	}
	balance, err := fixedpoint.ParseRaw(v.BalanceTokens, d)
	if err != nil {
		return domain.VaultSnapshot{}, fmt.Errorf("vault %s balanceTokens: %w", v.ID, err)
	}
	pps := fixedpoint.Zero(d)
	if v.LatestUpdate != nil {
		if pps, err = fixedpoint.ParseRaw(v.LatestUpdate.PricePerShare, d); err != nil {
			return domain.VaultSnapshot{}, fmt.Errorf("vault %s pricePerShare: %w", v.ID, err)
		}
	}

	return domain.VaultSnapshot{
		VaultID:       common.HexToAddress(v.ID),
		TokenID:       common.HexToAddress(v.Token.ID),
		TokenDecimals: decimals,
		SharesSupply:  supply,
		BalanceTokens: balance,
		PricePerShare: pps,
	}, nil
}

// entityID renders an address the way the indexer stores entity ids.
func entityID(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func tokenDecimals(d int) (uint8, error) {
	if d < 0 || d > 77 {
		return 0, fmt.Errorf("token decimals %d out of range", d)
	}
	return uint8(d), nil
}
