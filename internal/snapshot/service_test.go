package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

type mockEarner struct {
	report domain.ProtocolEarningsReport
	err    error
}

func (m *mockEarner) ProtocolEarnings(_ context.Context) (domain.ProtocolEarningsReport, error) {
	return m.report, m.err
}

type mockRepo struct {
	saveErr      error
	savedData    json.RawMessage
	savedDate    time.Time
	savedNetwork string
	latest       *Snapshot
	latestErr    error
	list         []Snapshot
	listErr      error
}

func (m *mockRepo) Save(_ context.Context, network string, date time.Time, data json.RawMessage) error {
	m.savedNetwork = network
	m.savedData = data
	m.savedDate = date
	return m.saveErr
}

func (m *mockRepo) GetLatest(_ context.Context, _ string) (*Snapshot, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest, nil
}

func (m *mockRepo) GetByDate(_ context.Context, _ string, _ time.Time) (*Snapshot, error) {
	return m.GetLatest(context.Background(), "")
}

func (m *mockRepo) GetNearestBefore(_ context.Context, _ string, _ time.Time) (*Snapshot, error) {
	return m.GetLatest(context.Background(), "")
}

func (m *mockRepo) List(_ context.Context, _ string, _ int) ([]Snapshot, error) {
	return m.list, m.listErr
}

func sampleReport() domain.ProtocolEarningsReport {
	usd := fixedpoint.FromInt64(12_500_000, fixedpoint.USDDecimals)
	return domain.ProtocolEarningsReport{
		Assets: []domain.EarningsReport{{
			AssetID:         common.HexToAddress("0xa1"),
			TokenID:         common.HexToAddress("0xb1"),
			AmountEarned:    fixedpoint.FromInt64(5, 0),
			AmountEarnedUsd: usd,
		}},
		TotalEarnedUsd: usd,
	}
}

func TestGenerateSuccess(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockEarner{report: sampleReport()}, repo)

	date := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	result, err := svc.Generate(context.Background(), "mainnet", date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalEarnedUsd.String() != "12.500000" {
		t.Errorf("total = %s", result.TotalEarnedUsd)
	}
	if repo.savedNetwork != "mainnet" {
		t.Errorf("network = %q", repo.savedNetwork)
	}
	if !repo.savedDate.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want day start", repo.savedDate)
	}

	stored := Snapshot{Data: repo.savedData}
	decoded, err := stored.Report()
	if err != nil {
		t.Fatalf("decoding stored report: %v", err)
	}
	if decoded.TotalEarnedUsd.String() != "12.500000" {
		t.Errorf("stored total = %s", decoded.TotalEarnedUsd)
	}
}

func TestGenerateStoresAmountsAsStrings(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockEarner{report: sampleReport()}, repo)

	if _, err := svc.Generate(context.Background(), "mainnet", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(repo.savedData, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["totalEarnedUsd"].(string); !ok {
		t.Errorf("totalEarnedUsd = %T, want string", raw["totalEarnedUsd"])
	}
}

func TestGenerateKeepsFaults(t *testing.T) {
	report := sampleReport()
	report.Faults = []domain.Fault{{ItemID: "0xa2", Kind: domain.FaultPriceUnavailable, Message: "price unavailable"}}
	repo := &mockRepo{}
	svc := NewService(&mockEarner{report: report}, repo)

	if _, err := svc.Generate(context.Background(), "mainnet", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, _ := Snapshot{Data: repo.savedData}.Report()
	if decoded.Complete() || decoded.Faults[0].Kind != domain.FaultPriceUnavailable {
		t.Errorf("stored faults = %+v", decoded.Faults)
	}
}

func TestGenerateEarningsError(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockEarner{err: domain.ErrSubgraphUnreachable}, repo)

	_, err := svc.Generate(context.Background(), "mainnet", time.Now())
	if !errors.Is(err, domain.ErrSubgraphUnreachable) {
		t.Fatalf("err = %v, want ErrSubgraphUnreachable", err)
	}
	if repo.savedData != nil {
		t.Error("nothing must be saved on failure")
	}
}

func TestGenerateRepoSaveError(t *testing.T) {
	repo := &mockRepo{saveErr: errors.New("save failed")}
	svc := NewService(&mockEarner{report: sampleReport()}, repo)

	if _, err := svc.Generate(context.Background(), "mainnet", time.Now()); err == nil {
		t.Fatal("expected error from repo save")
	}
}

func TestGetLatestNotFound(t *testing.T) {
	svc := NewService(&mockEarner{}, &mockRepo{latestErr: ErrNotFound})

	if _, err := svc.GetLatest(context.Background(), "mainnet"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
