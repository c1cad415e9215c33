package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/vaultstat/internal/domain"
)

// SnapshotQuerier is the snapshot half of the indexer contract.
type SnapshotQuerier interface {
	QueryVaultSnapshot(ctx context.Context, vault common.Address) (domain.VaultSnapshot, error)
	QueryAllVaultSnapshots(ctx context.Context, filter domain.SnapshotFilter) ([]domain.VaultSnapshot, error)
}

// LiveSnapshots refreshes indexer snapshots with current chain reads of
// pricePerShare and totalSupply. balanceTokens is the indexer's running
// net-deposit ledger and has no on-chain equivalent, so it is kept as indexed.
// A failed chain read leaves the indexed values in place.
type LiveSnapshots struct {
	caller      ethereum.ContractCaller
	base        SnapshotQuerier
	concurrency int

	mu       sync.Mutex
	adapters map[common.Address]*Adapter
}

// NewLiveSnapshots creates a chain-refreshing snapshot source over base.
func NewLiveSnapshots(caller ethereum.ContractCaller, base SnapshotQuerier, concurrency int) *LiveSnapshots {
	if caller == nil || base == nil {
		panic("vault: NewLiveSnapshots requires caller and base")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LiveSnapshots{
		caller:      caller,
		base:        base,
		concurrency: concurrency,
		adapters:    make(map[common.Address]*Adapter),
	}
}

func (s *LiveSnapshots) QueryVaultSnapshot(ctx context.Context, vault common.Address) (domain.VaultSnapshot, error) {
	snap, err := s.base.QueryVaultSnapshot(ctx, vault)
	if err != nil {
		return domain.VaultSnapshot{}, err
	}
	return s.refresh(ctx, snap), nil
}

func (s *LiveSnapshots) QueryAllVaultSnapshots(ctx context.Context, filter domain.SnapshotFilter) ([]domain.VaultSnapshot, error) {
	snaps, err := s.base.QueryAllVaultSnapshots(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]domain.VaultSnapshot, len(snaps))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, snap := range snaps {
		g.Go(func() error {
			out[i] = s.refresh(ctx, snap)
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

func (s *LiveSnapshots) refresh(ctx context.Context, snap domain.VaultSnapshot) domain.VaultSnapshot {
	a, err := s.adapter(snap.VaultID)
	if err != nil {
		slog.Warn("chain adapter unavailable, using indexed snapshot", "vault", snap.VaultID.Hex(), "error", err)
		return snap
	}

	pps, err := a.PricePerShare(ctx, snap.TokenDecimals)
	if err != nil {
		slog.Warn("pricePerShare read failed, using indexed snapshot", "vault", snap.VaultID.Hex(), "error", err)
		return snap
	}
	supply, err := a.TotalSupply(ctx, snap.TokenDecimals)
	if err != nil {
		slog.Warn("totalSupply read failed, using indexed snapshot", "vault", snap.VaultID.Hex(), "error", err)
		return snap
	}

	snap.PricePerShare = pps
	snap.SharesSupply = supply
	return snap
}

func (s *LiveSnapshots) adapter(vault common.Address) (*Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.adapters[vault]; ok {
		return a, nil
	}
	a, err := NewAdapter(s.caller, vault)
	if err != nil {
		return nil, fmt.Errorf("binding adapter: %w", err)
	}
	s.adapters[vault] = a
	return a, nil
}
