// Package earnings computes vault and account earnings and converts them to USD.
package earnings

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// DefaultImplausibleCeilingUsd is the USD value at or above which a vault's
// earnings are treated as indexer noise and left out of protocol totals.
const DefaultImplausibleCeilingUsd = 1_000_000_000

// DefaultConcurrency bounds fan-out against the oracle and indexer.
const DefaultConcurrency = 8

// SnapshotSource supplies vault accounting state.
type SnapshotSource interface {
	QueryVaultSnapshot(ctx context.Context, vault common.Address) (domain.VaultSnapshot, error)
	QueryAllVaultSnapshots(ctx context.Context, filter domain.SnapshotFilter) ([]domain.VaultSnapshot, error)
}

// InteractionSource supplies an account's ledger.
type InteractionSource interface {
	QueryAccountInteractions(ctx context.Context, account common.Address) (domain.AccountInteractions, error)
}

// PriceOracle prices tokens in USD with fixedpoint.USDDecimals decimals.
type PriceOracle interface {
	PriceUsd(ctx context.Context, token common.Address) (fixedpoint.Amount, error)
}

// VaultLister enumerates the vaults a protocol pass covers.
type VaultLister interface {
	Vaults(ctx context.Context) ([]common.Address, error)
}

// Options tunes batch behaviour.
type Options struct {
	// Concurrency caps in-flight items per batch. Zero means DefaultConcurrency.
	Concurrency int
	// ImplausibleCeiling is the USD exclusion threshold. Zero means DefaultImplausibleCeilingUsd.
	ImplausibleCeiling fixedpoint.Amount
	// AllOrNothing fails the whole batch on the first item error and cancels the rest.
	AllOrNothing bool
	// ItemTimeout bounds each item's external calls. Zero means no per-item bound.
	ItemTimeout time.Duration
}

// Calculator computes earnings reports.
type Calculator struct {
	snapshots    SnapshotSource
	interactions InteractionSource
	prices       PriceOracle
	vaults       VaultLister
	opts         Options
}

// NewCalculator creates a Calculator. vaults may be nil, in which case a protocol
// pass covers every vault the snapshot source knows.
func NewCalculator(snapshots SnapshotSource, interactions InteractionSource, prices PriceOracle, vaults VaultLister, opts Options) *Calculator {
	if snapshots == nil {
		panic("earnings.NewCalculator: snapshots is nil")
	}
	if interactions == nil {
		panic("earnings.NewCalculator: interactions is nil")
	}
	if prices == nil {
		panic("earnings.NewCalculator: prices is nil")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ImplausibleCeiling.IsZero() {
		opts.ImplausibleCeiling = fixedpoint.FromInt64(DefaultImplausibleCeilingUsd, 0).Rescale(fixedpoint.USDDecimals)
	}
	return &Calculator{
		snapshots:    snapshots,
		interactions: interactions,
		prices:       prices,
		vaults:       vaults,
		opts:         opts,
	}
}

// forEach runs fn for indexes [0, n) with bounded concurrency and returns the
// per-index errors. In all-or-nothing mode the first error cancels the
// remaining items and is returned as the batch error.
func (c *Calculator) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) ([]error, error) {
	errs := make([]error, n)

	if c.opts.AllOrNothing {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.Concurrency)
		for i := range n {
			g.Go(func() error {
				errs[i] = c.runItem(gctx, i, fn)
				return errs[i]
			})
		}
		return errs, g.Wait()
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i := range n {
		g.Go(func() error {
			errs[i] = c.runItem(ctx, i, fn)
			return nil
		})
	}
	_ = g.Wait()
	return errs, nil
}

func (c *Calculator) runItem(ctx context.Context, i int, fn func(ctx context.Context, i int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ItemTimeout)
		defer cancel()
	}
	return fn(ctx, i)
}

// toUsd converts a token amount to USD at price, truncated to USD decimals.
func toUsd(tokens, price fixedpoint.Amount) fixedpoint.Amount {
	return tokens.Mul(price).Rescale(fixedpoint.USDDecimals)
}

func sumUsd(reports []domain.EarningsReport) fixedpoint.Amount {
	return lo.Reduce(reports, func(acc fixedpoint.Amount, r domain.EarningsReport, _ int) fixedpoint.Amount {
		return acc.Add(r.AmountEarnedUsd)
	}, fixedpoint.Zero(fixedpoint.USDDecimals))
}
