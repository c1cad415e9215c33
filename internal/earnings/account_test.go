package earnings

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

func TestAccountEarningsSingleVault(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			AccountID: alice,
			Deposits:  []domain.InteractionRecord{record(t, domain.InteractionDeposit, vault1, "100", 6)},
			// 100 shares at 1.5 tokens per share: currentTokenAmount = 150.
			Positions: []domain.PositionSource{position(t, vault1, tokenX, 6, "100", "1.5")},
		},
	}}
	prices := newMockPrices(map[common.Address]fixedpoint.Amount{tokenX: usd(t, "2.00")})
	calc := NewCalculator(&mockSnapshots{}, in, prices, nil, Options{})

	r, err := calc.AccountEarnings(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.PerVault) != 1 {
		t.Fatalf("perVault = %d, want 1", len(r.PerVault))
	}
	if got := r.PerVault[0].AmountEarned.String(); got != "50.000000" {
		t.Errorf("earned = %s, want 50.000000", got)
	}
	if got := r.PerVault[0].AmountEarnedUsd.String(); got != "100.000000" {
		t.Errorf("earned usd = %s, want 100.000000", got)
	}
	if got := r.TotalEarnedUsd.String(); got != "100.000000" {
		t.Errorf("total = %s, want 100.000000", got)
	}
}

func TestAccountEarningsAllFlows(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			Deposits: []domain.InteractionRecord{
				record(t, domain.InteractionDeposit, vault1, "60", 6),
				record(t, domain.InteractionDeposit, vault1, "40", 6),
			},
			Withdrawals:    []domain.InteractionRecord{record(t, domain.InteractionWithdrawal, vault1, "30", 6)},
			SharesSent:     []domain.InteractionRecord{record(t, domain.InteractionSharesSent, vault1, "5", 6)},
			SharesReceived: []domain.InteractionRecord{record(t, domain.InteractionSharesReceived, vault1, "10", 6)},
			Positions:      []domain.PositionSource{position(t, vault1, tokenX, 6, "80", "1")},
		},
	}}
	prices := newMockPrices(map[common.Address]fixedpoint.Amount{tokenX: usd(t, "1")})
	calc := NewCalculator(&mockSnapshots{}, in, prices, nil, Options{})

	r, err := calc.AccountEarnings(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (80 + 30 + 5) − (100 + 10) = 5
	if got := r.PerVault[0].AmountEarned.String(); got != "5.000000" {
		t.Errorf("earned = %s, want 5.000000", got)
	}
}

func TestAccountEarningsUnderflow(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			Deposits:  []domain.InteractionRecord{record(t, domain.InteractionDeposit, vault1, "200", 6)},
			Positions: []domain.PositionSource{position(t, vault1, tokenX, 6, "100", "1.5")},
		},
	}}
	prices := newMockPrices(map[common.Address]fixedpoint.Amount{tokenX: usd(t, "1")})
	calc := NewCalculator(&mockSnapshots{}, in, prices, nil, Options{})

	r, err := calc.AccountEarnings(context.Background(), alice)
	if !errors.Is(err, domain.ErrEarningsUnderflow) {
		t.Fatalf("err = %v, want ErrEarningsUnderflow", err)
	}
	var ve *domain.VaultError
	if !errors.As(err, &ve) || ve.Account != alice || ve.Vault != vault1 {
		t.Errorf("err = %v, want VaultError naming alice and vault1", err)
	}
	if r.PerVault != nil || !r.TotalEarnedUsd.IsZero() {
		t.Errorf("failed computation returned a report: %+v", r)
	}
	if prices.callCount(tokenX) != 0 {
		t.Error("prices must not be fetched when flows underflow")
	}
}

func TestAccountEarningsEqualFlowsUnderflow(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			Deposits:  []domain.InteractionRecord{record(t, domain.InteractionDeposit, vault1, "100", 6)},
			Positions: []domain.PositionSource{position(t, vault1, tokenX, 6, "100", "1")},
		},
	}}
	calc := NewCalculator(&mockSnapshots{}, in, newMockPrices(nil), nil, Options{})

	if _, err := calc.AccountEarnings(context.Background(), alice); !errors.Is(err, domain.ErrEarningsUnderflow) {
		t.Errorf("err = %v, want ErrEarningsUnderflow", err)
	}
}

func TestAccountEarningsPreservesPositionOrder(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			Deposits: []domain.InteractionRecord{
				record(t, domain.InteractionDeposit, vault3, "1", 6),
				record(t, domain.InteractionDeposit, vault1, "1", 6),
				record(t, domain.InteractionDeposit, vault2, "1", 6),
			},
			Positions: []domain.PositionSource{
				position(t, vault2, tokenY, 6, "1", "2"),
				position(t, vault3, tokenZ, 6, "1", "50"),
				position(t, vault1, tokenX, 6, "1", "10"),
			},
		},
	}}
	prices := newMockPrices(map[common.Address]fixedpoint.Amount{
		tokenX: usd(t, "1"),
		tokenY: usd(t, "1"),
		tokenZ: usd(t, "1"),
	})
	calc := NewCalculator(&mockSnapshots{}, in, prices, nil, Options{})

	r, err := calc.AccountEarnings(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []common.Address{vault2, vault3, vault1}
	for i, v := range want {
		if r.PerVault[i].AssetID != v {
			t.Errorf("perVault[%d] = %s, want %s", i, r.PerVault[i].AssetID.Hex(), v.Hex())
		}
	}
	if got := r.TotalEarnedUsd.String(); got != "59.000000" {
		t.Errorf("total = %s, want 59.000000", got)
	}
}

func TestAccountEarningsPriceUnavailable(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			Positions: []domain.PositionSource{
				position(t, vault1, tokenX, 6, "1", "1"),
				position(t, vault2, tokenY, 6, "1", "1"),
			},
		},
	}}
	prices := newMockPrices(map[common.Address]fixedpoint.Amount{tokenX: usd(t, "1")})
	calc := NewCalculator(&mockSnapshots{}, in, prices, nil, Options{})

	_, err := calc.AccountEarnings(context.Background(), alice)
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
	var ve *domain.VaultError
	if !errors.As(err, &ve) || ve.Vault != vault2 {
		t.Errorf("err = %v, want VaultError for vault2", err)
	}
}

func TestAccountEarningsIgnoresOrphanRecords(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			Deposits: []domain.InteractionRecord{
				record(t, domain.InteractionDeposit, vault1, "1", 6),
				record(t, domain.InteractionDeposit, vault3, "1000", 6),
			},
			Positions: []domain.PositionSource{position(t, vault1, tokenX, 6, "2", "1")},
		},
	}}
	prices := newMockPrices(map[common.Address]fixedpoint.Amount{tokenX: usd(t, "1")})
	calc := NewCalculator(&mockSnapshots{}, in, prices, nil, Options{})

	r, err := calc.AccountEarnings(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.PerVault) != 1 || r.PerVault[0].AmountEarned.String() != "1.000000" {
		t.Errorf("perVault = %+v", r.PerVault)
	}
}

func TestAccountsEarningsPartialFailure(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {
			Deposits:  []domain.InteractionRecord{record(t, domain.InteractionDeposit, vault1, "100", 6)},
			Positions: []domain.PositionSource{position(t, vault1, tokenX, 6, "100", "1.5")},
		},
		bob: {
			Deposits:  []domain.InteractionRecord{record(t, domain.InteractionDeposit, vault1, "200", 6)},
			Positions: []domain.PositionSource{position(t, vault1, tokenX, 6, "100", "1.5")},
		},
	}}
	prices := newMockPrices(map[common.Address]fixedpoint.Amount{tokenX: usd(t, "2")})
	calc := NewCalculator(&mockSnapshots{}, in, prices, nil, Options{})

	report, err := calc.AccountsEarnings(context.Background(), []common.Address{alice, bob})
	if err != nil {
		t.Fatalf("batch must not fail: %v", err)
	}
	if len(report.Accounts) != 1 || report.Accounts[0].AccountID != alice {
		t.Fatalf("accounts = %+v", report.Accounts)
	}
	if len(report.Faults) != 1 || report.Faults[0].ItemID != bob.Hex() || report.Faults[0].Kind != domain.FaultEarningsUnderflow {
		t.Errorf("faults = %+v", report.Faults)
	}
	if prices.callCount(tokenX) != 1 {
		t.Errorf("price calls = %d, want 1 across the batch", prices.callCount(tokenX))
	}
}

func TestAccountsEarningsAllOrNothing(t *testing.T) {
	in := &mockInteractions{accounts: map[common.Address]domain.AccountInteractions{
		alice: {Positions: []domain.PositionSource{position(t, vault1, tokenX, 6, "1", "1")}},
	}}
	calc := NewCalculator(&mockSnapshots{}, in, newMockPrices(map[common.Address]fixedpoint.Amount{tokenX: usd(t, "1")}), nil, Options{AllOrNothing: true})

	_, err := calc.AccountsEarnings(context.Background(), []common.Address{alice, bob})
	if !errors.Is(err, domain.ErrSubgraphUnreachable) {
		t.Errorf("err = %v, want ErrSubgraphUnreachable for unknown bob", err)
	}
}

func TestNewCalculatorPanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil prices")
		}
	}()
	NewCalculator(&mockSnapshots{}, &mockInteractions{}, nil, nil, Options{})
}
