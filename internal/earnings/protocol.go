package earnings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
	"github.com/mtlprog/vaultstat/internal/oracle"
)

// vaultEarned returns totalTokens − balanceTokens. The result may be negative.
func vaultEarned(s domain.VaultSnapshot) fixedpoint.Amount {
	return s.TotalTokens().Sub(s.BalanceTokens)
}

// AssetEarnings computes the earnings of a single vault. Negative earnings fail
// with fixedpoint.ErrUnderflow; the implausible-value filter is not applied.
func (c *Calculator) AssetEarnings(ctx context.Context, vault common.Address) (domain.EarningsReport, error) {
	snap, err := c.snapshots.QueryVaultSnapshot(ctx, vault)
	if err != nil {
		return domain.EarningsReport{}, &domain.VaultError{Vault: vault, Err: err}
	}

	earned := vaultEarned(snap)
	if earned.Sign() < 0 {
		return domain.EarningsReport{}, &domain.VaultError{
			Vault: vault,
			Err:   fmt.Errorf("earned tokens %s: %w", earned, fixedpoint.ErrUnderflow),
		}
	}

	price, err := c.prices.PriceUsd(ctx, snap.TokenID)
	if err != nil {
		return domain.EarningsReport{}, &domain.VaultError{Vault: vault, Err: err}
	}

	return domain.EarningsReport{
		AssetID:         snap.VaultID,
		TokenID:         snap.TokenID,
		AmountEarned:    earned,
		AmountEarnedUsd: toUsd(earned, price),
	}, nil
}

// ProtocolEarnings runs a protocol-wide pass over the configured vault list,
// or over every indexed vault when no list is configured.
func (c *Calculator) ProtocolEarnings(ctx context.Context) (domain.ProtocolEarningsReport, error) {
	var ids []common.Address
	if c.vaults != nil {
		var err error
		if ids, err = c.vaults.Vaults(ctx); err != nil {
			return domain.ProtocolEarningsReport{}, fmt.Errorf("listing vaults: %w", err)
		}
		if len(ids) == 0 {
			return emptyProtocolReport(), nil
		}
	}
	return c.AssetsEarnings(ctx, ids)
}

// assetOutcome is the result of one vault in a protocol pass. Exactly one field is set.
type assetOutcome struct {
	asset    *domain.EarningsReport
	excluded *domain.ExcludedItem
	fault    *domain.Fault
}

// AssetsEarnings computes a protocol report over the given vaults (all indexed
// vaults when ids is empty). Per-vault failures become faults unless the
// calculator runs in all-or-nothing mode. With explicit ids, results follow ids
// and a vault the indexer does not return is a not-found fault; otherwise they
// follow snapshot order.
func (c *Calculator) AssetsEarnings(ctx context.Context, ids []common.Address) (domain.ProtocolEarningsReport, error) {
	snaps, err := c.snapshots.QueryAllVaultSnapshots(ctx, domain.SnapshotFilter{IDs: ids})
	if err != nil {
		return domain.ProtocolEarningsReport{}, fmt.Errorf("querying vault snapshots: %w", err)
	}
	slots := vaultSlots(ids, snaps)

	prices := oracle.NewMemo(c.prices)
	outcomes := make([]assetOutcome, len(slots))

	errs, err := c.forEach(ctx, len(slots), func(ctx context.Context, i int) error {
		slot := slots[i]
		if slot.snap == nil {
			return &domain.VaultError{Vault: slot.id, Err: domain.ErrVaultNotFound}
		}
		out, err := c.assetOutcome(ctx, prices, *slot.snap)
		if err != nil {
			return &domain.VaultError{Vault: slot.id, Err: err}
		}
		outcomes[i] = out
		return nil
	})
	if err != nil {
		return domain.ProtocolEarningsReport{}, err
	}

	report := emptyProtocolReport()
	for i, out := range outcomes {
		switch {
		case errs[i] != nil:
			slog.Warn("vault earnings failed", "vault", slots[i].id.Hex(), "error", errs[i])
			report.Faults = append(report.Faults, domain.NewFault(slots[i].id.Hex(), errs[i]))
		case out.excluded != nil:
			report.Excluded = append(report.Excluded, *out.excluded)
		case out.asset != nil:
			report.Assets = append(report.Assets, *out.asset)
		}
	}
	report.TotalEarnedUsd = sumUsd(report.Assets)

	slog.Info("protocol earnings computed",
		"vaults", len(slots),
		"included", len(report.Assets),
		"excluded", len(report.Excluded),
		"faults", len(report.Faults),
		"total_usd", report.TotalEarnedUsd.String())

	return report, nil
}

// vaultSlot is one vault of a protocol pass; snap is nil when the indexer did not return it.
type vaultSlot struct {
	id   common.Address
	snap *domain.VaultSnapshot
}

// vaultSlots orders snaps by ids, one slot per distinct id. Snapshots not
// requested are dropped. Without ids every snapshot is a slot, in snapshot order.
func vaultSlots(ids []common.Address, snaps []domain.VaultSnapshot) []vaultSlot {
	if len(ids) == 0 {
		return lo.Map(snaps, func(s domain.VaultSnapshot, i int) vaultSlot {
			return vaultSlot{id: s.VaultID, snap: &snaps[i]}
		})
	}
	byID := make(map[common.Address]*domain.VaultSnapshot, len(snaps))
	for i := range snaps {
		byID[snaps[i].VaultID] = &snaps[i]
	}
	return lo.Map(lo.Uniq(ids), func(id common.Address, _ int) vaultSlot {
		return vaultSlot{id: id, snap: byID[id]}
	})
}

func (c *Calculator) assetOutcome(ctx context.Context, prices PriceOracle, snap domain.VaultSnapshot) (assetOutcome, error) {
	earned := vaultEarned(snap)
	if earned.Sign() < 0 {
		slog.Warn("excluding vault with negative earnings", "vault", snap.VaultID.Hex(), "earned", earned.String())
		return assetOutcome{excluded: &domain.ExcludedItem{
			AssetID:      snap.VaultID,
			TokenID:      snap.TokenID,
			Reason:       domain.ExclusionNegativeEarnings,
			AmountEarned: earned,
		}}, nil
	}

	price, err := prices.PriceUsd(ctx, snap.TokenID)
	if err != nil {
		return assetOutcome{}, err
	}

	usd := toUsd(earned, price)
	if usd.Sign() <= 0 || usd.Cmp(c.opts.ImplausibleCeiling) >= 0 {
		slog.Warn("excluding vault with implausible earnings",
			"vault", snap.VaultID.Hex(), "earned_usd", usd.String(), "ceiling_usd", c.opts.ImplausibleCeiling.String())
		return assetOutcome{excluded: &domain.ExcludedItem{
			AssetID:         snap.VaultID,
			TokenID:         snap.TokenID,
			Reason:          domain.ExclusionImplausibleEarnings,
			AmountEarned:    earned,
			AmountEarnedUsd: &usd,
		}}, nil
	}

	return assetOutcome{asset: &domain.EarningsReport{
		AssetID:         snap.VaultID,
		TokenID:         snap.TokenID,
		AmountEarned:    earned,
		AmountEarnedUsd: usd,
	}}, nil
}

func emptyProtocolReport() domain.ProtocolEarningsReport {
	return domain.ProtocolEarningsReport{
		Assets:         []domain.EarningsReport{},
		TotalEarnedUsd: fixedpoint.Zero(fixedpoint.USDDecimals),
		Excluded:       []domain.ExcludedItem{},
		Faults:         []domain.Fault{},
	}
}
