package earnings

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

type mockSnapshots struct {
	snaps     []domain.VaultSnapshot
	err       error
	gotFilter domain.SnapshotFilter
}

func (m *mockSnapshots) QueryVaultSnapshot(_ context.Context, vault common.Address) (domain.VaultSnapshot, error) {
	if m.err != nil {
		return domain.VaultSnapshot{}, m.err
	}
	for _, s := range m.snaps {
		if s.VaultID == vault {
			return s, nil
		}
	}
	return domain.VaultSnapshot{}, domain.ErrSubgraphUnreachable
}

// QueryAllVaultSnapshots filters by IDs like the indexer does, keeping stored order.
func (m *mockSnapshots) QueryAllVaultSnapshots(_ context.Context, filter domain.SnapshotFilter) ([]domain.VaultSnapshot, error) {
	m.gotFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	if len(filter.IDs) == 0 {
		return m.snaps, nil
	}
	var out []domain.VaultSnapshot
	for _, s := range m.snaps {
		if slices.Contains(filter.IDs, s.VaultID) {
			out = append(out, s)
		}
	}
	return out, nil
}

type mockInteractions struct {
	accounts map[common.Address]domain.AccountInteractions
	err      error
}

func (m *mockInteractions) QueryAccountInteractions(_ context.Context, account common.Address) (domain.AccountInteractions, error) {
	if m.err != nil {
		return domain.AccountInteractions{}, m.err
	}
	in, ok := m.accounts[account]
	if !ok {
		return domain.AccountInteractions{}, domain.ErrSubgraphUnreachable
	}
	return in, nil
}

type mockPrices struct {
	mu       sync.Mutex
	prices   map[common.Address]fixedpoint.Amount
	calls    map[common.Address]int
	delay    time.Duration
	block    bool
	inFlight int
	maxSeen  int
}

func newMockPrices(prices map[common.Address]fixedpoint.Amount) *mockPrices {
	return &mockPrices{prices: prices, calls: make(map[common.Address]int)}
}

func (m *mockPrices) PriceUsd(ctx context.Context, token common.Address) (fixedpoint.Amount, error) {
	m.mu.Lock()
	m.calls[token]++
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.block {
		<-ctx.Done()
		return fixedpoint.Amount{}, ctx.Err()
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return fixedpoint.Amount{}, ctx.Err()
		}
	}

	p, ok := m.prices[token]
	if !ok {
		return fixedpoint.Amount{}, domain.ErrPriceUnavailable
	}
	return p, nil
}

func (m *mockPrices) callCount(token common.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[token]
}

type staticLister []common.Address

func (s staticLister) Vaults(context.Context) ([]common.Address, error) { return s, nil }

func dec(t *testing.T, s string, decimals uint) fixedpoint.Amount {
	t.Helper()
	a, err := fixedpoint.FromDecimalString(s, decimals)
	if err != nil {
		t.Fatalf("FromDecimalString(%q): %v", s, err)
	}
	return a
}

func usd(t *testing.T, s string) fixedpoint.Amount {
	t.Helper()
	return dec(t, s, fixedpoint.USDDecimals)
}

// snapshot builds a vault snapshot from human decimal strings at the given token decimals.
func snapshot(t *testing.T, vault, token common.Address, decimals uint8, supply, balance, pps string) domain.VaultSnapshot {
	t.Helper()
	d := uint(decimals)
	return domain.VaultSnapshot{
		VaultID:       vault,
		TokenID:       token,
		TokenDecimals: decimals,
		SharesSupply:  dec(t, supply, d),
		BalanceTokens: dec(t, balance, d),
		PricePerShare: dec(t, pps, d),
	}
}

func record(t *testing.T, kind domain.InteractionKind, vault common.Address, amount string, decimals uint) domain.InteractionRecord {
	t.Helper()
	return domain.InteractionRecord{Kind: kind, VaultID: vault, TokenAmount: dec(t, amount, decimals)}
}

func position(t *testing.T, vault, token common.Address, decimals uint8, shares, pps string) domain.PositionSource {
	t.Helper()
	return domain.PositionSource{
		VaultID:       vault,
		TokenID:       token,
		TokenDecimals: decimals,
		BalanceShares: dec(t, shares, uint(decimals)),
		PricePerShare: dec(t, pps, uint(decimals)),
	}
}

var (
	vault1 = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	vault2 = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	vault3 = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	tokenX = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	tokenY = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	tokenZ = common.HexToAddress("0x0000000000000000000000000000000000000b03")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000c02")
)
