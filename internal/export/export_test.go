package export

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
	"github.com/mtlprog/vaultstat/internal/snapshot"
)

func usd(t *testing.T, s string) fixedpoint.Amount {
	t.Helper()
	a, err := fixedpoint.FromDecimalString(s, fixedpoint.USDDecimals)
	if err != nil {
		t.Fatalf("FromDecimalString(%q): %v", s, err)
	}
	return a
}

func sampleReport(t *testing.T) domain.ProtocolEarningsReport {
	negUsd := usd(t, "0")
	return domain.ProtocolEarningsReport{
		Assets: []domain.EarningsReport{{
			AssetID:         common.HexToAddress("0xa1"),
			TokenID:         common.HexToAddress("0xb1"),
			AmountEarned:    fixedpoint.FromInt64(1_500_000, 6),
			AmountEarnedUsd: usd(t, "3"),
		}},
		TotalEarnedUsd: usd(t, "150"),
		Excluded: []domain.ExcludedItem{
			{AssetID: common.HexToAddress("0xa2"), Reason: domain.ExclusionNegativeEarnings, AmountEarned: fixedpoint.FromInt64(-1, 0)},
			{AssetID: common.HexToAddress("0xa3"), Reason: domain.ExclusionImplausibleEarnings, AmountEarned: fixedpoint.Zero(6), AmountEarnedUsd: &negUsd},
		},
		Faults: []domain.Fault{{ItemID: "0xa4", Kind: domain.FaultPriceUnavailable, Message: "price unavailable"}},
	}
}

type mockHistory struct {
	snap *snapshot.Snapshot
	err  error
}

func (m *mockHistory) GetNearestBefore(_ context.Context, _ string, _ time.Time) (*snapshot.Snapshot, error) {
	return m.snap, m.err
}

type mockWriter struct {
	tables []Table
	err    error
}

func (m *mockWriter) Write(_ context.Context, tables []Table) error {
	m.tables = tables
	return m.err
}

type mockHistoryWriter struct {
	mockWriter
	header []string
	row    []any
}

func (m *mockHistoryWriter) AppendHistory(_ context.Context, header []string, row []any) error {
	m.header = header
	m.row = row
	return nil
}

func TestTables(t *testing.T) {
	svc := NewService(nil, "mainnet")
	tables := svc.Tables(context.Background(), sampleReport(t), time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC))

	names := []string{"SUMMARY", "ASSETS", "EXCLUDED", "FAULTS"}
	if len(tables) != len(names) {
		t.Fatalf("tables = %d, want %d", len(tables), len(names))
	}
	for i, n := range names {
		if tables[i].Name != n {
			t.Errorf("tables[%d] = %s, want %s", i, tables[i].Name, n)
		}
	}

	summary := tables[0]
	if v, ok := summary.Rows[0][1].(decimal.Decimal); !ok || v.String() != "150" {
		t.Errorf("summary total = %v", summary.Rows[0][1])
	}
	if summary.Rows[0][2] != nil {
		t.Errorf("week change without history = %v, want nil", summary.Rows[0][2])
	}
	if summary.Rows[3][1] != 1 {
		t.Errorf("faults count = %v, want 1", summary.Rows[3][1])
	}

	assets := tables[1]
	if len(assets.Rows) != 1 || assets.Rows[0][0] != common.HexToAddress("0xa1").Hex() {
		t.Errorf("assets rows = %v", assets.Rows)
	}
	if v := assets.Rows[0][2].(decimal.Decimal); v.String() != "1.5" {
		t.Errorf("earned = %s, want 1.5", v)
	}

	excluded := tables[2]
	if excluded.Rows[0][2] != "negative_earnings" || excluded.Rows[0][4] != nil {
		t.Errorf("excluded[0] = %v", excluded.Rows[0])
	}
	if excluded.Rows[1][4] == nil {
		t.Error("implausible exclusion must carry its USD value")
	}

	faults := tables[3]
	if faults.Rows[0][1] != "price_unavailable" {
		t.Errorf("fault kind = %v", faults.Rows[0][1])
	}
}

func TestSummaryChangesFromHistory(t *testing.T) {
	past, _ := json.Marshal(domain.ProtocolEarningsReport{TotalEarnedUsd: usd(t, "100")})
	svc := NewService(&mockHistory{snap: &snapshot.Snapshot{Data: past}}, "mainnet")

	tables := svc.Tables(context.Background(), sampleReport(t), time.Now())
	week, ok := tables[0].Rows[0][2].(decimal.Decimal)
	if !ok {
		t.Fatalf("week change = %v, want decimal", tables[0].Rows[0][2])
	}
	if !week.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("week change = %s, want 0.5", week)
	}
}

func TestSummaryIgnoresMissingHistory(t *testing.T) {
	svc := NewService(&mockHistory{err: snapshot.ErrNotFound}, "mainnet")

	tables := svc.Tables(context.Background(), sampleReport(t), time.Now())
	for i := 2; i < 6; i++ {
		if tables[0].Rows[0][i] != nil {
			t.Errorf("change[%d] = %v, want nil", i, tables[0].Rows[0][i])
		}
	}
}

func TestExportWritesAllAndAppendsHistory(t *testing.T) {
	plain := &mockWriter{}
	withHistory := &mockHistoryWriter{}
	svc := NewService(nil, "mainnet", plain, withHistory)
	svc.now = func() time.Time { return time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC) }

	if err := svc.Export(context.Background(), sampleReport(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plain.tables) != 4 || len(withHistory.tables) != 4 {
		t.Errorf("tables written = %d, %d", len(plain.tables), len(withHistory.tables))
	}
	if withHistory.row[0] != "24.02.2026" {
		t.Errorf("history date = %v", withHistory.row[0])
	}
	if len(withHistory.header) != len(withHistory.row) {
		t.Errorf("history header/row mismatch: %d vs %d", len(withHistory.header), len(withHistory.row))
	}
}

func TestExportJoinsWriterErrors(t *testing.T) {
	failing := &mockWriter{err: errors.New("quota exceeded")}
	ok := &mockWriter{}
	svc := NewService(nil, "mainnet", failing, ok)

	err := svc.Export(context.Background(), sampleReport(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if ok.tables == nil {
		t.Error("a failing writer must not stop the others")
	}
}

func TestSheetRow(t *testing.T) {
	row := sheetRow([]any{"a", 2, decimal.RequireFromString("1.000512"), nil})
	want := []any{"a", 2, "1.000512", ""}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("row[%d] = %v (%T), want %v", i, row[i], row[i], want[i])
		}
	}
}

func TestXLSXWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	svc := NewService(nil, "mainnet", NewXLSXWriter(path))

	if err := svc.Export(context.Background(), sampleReport(t)); err != nil {
		t.Fatalf("Export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 4 || got[0] != "SUMMARY" {
		t.Errorf("sheets = %v", got)
	}
	rows, err := f.GetRows("ASSETS")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "Vault" {
		t.Fatalf("rows = %v", rows)
	}
	raw, err := f.GetCellValue("ASSETS", "D2", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if raw != "3" {
		t.Errorf("usd cell = %q, want 3", raw)
	}
}
