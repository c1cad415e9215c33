// Package export renders protocol earnings reports as spreadsheet tables.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/snapshot"
)

// Table is one named sheet. Cells are string, int, decimal.Decimal or nil.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// SheetWriter writes tables to a spreadsheet destination, replacing earlier content.
type SheetWriter interface {
	Write(ctx context.Context, tables []Table) error
}

// HistoryAppender is implemented by writers that keep a running one-row-per-run history.
type HistoryAppender interface {
	AppendHistory(ctx context.Context, header []string, row []any) error
}

// HistoryReader finds earlier snapshots for period-over-period changes.
type HistoryReader interface {
	GetNearestBefore(ctx context.Context, network string, date time.Time) (*snapshot.Snapshot, error)
}

// changePeriods are the look-back windows, in days, of the summary change columns.
var changePeriods = []int{7, 30, 90, 365}

// Service turns protocol reports into tables and hands them to every writer.
type Service struct {
	history HistoryReader // optional
	network string
	writers []SheetWriter
	now     func() time.Time
}

// NewService creates a new export Service. history may be nil.
func NewService(history HistoryReader, network string, writers ...SheetWriter) *Service {
	return &Service{history: history, network: network, writers: writers, now: time.Now}
}

// Export writes report to every configured writer. Implements worker.AfterSnapshotHook.
func (s *Service) Export(ctx context.Context, report domain.ProtocolEarningsReport) error {
	at := s.now().UTC()
	tables := s.Tables(ctx, report, at)

	var errs []error
	for _, w := range s.writers {
		if err := w.Write(ctx, tables); err != nil {
			errs = append(errs, fmt.Errorf("writing tables: %w", err))
			continue
		}
		if h, ok := w.(HistoryAppender); ok {
			header, row := historyRow(report, at)
			if err := h.AppendHistory(ctx, header, row); err != nil {
				errs = append(errs, fmt.Errorf("appending history: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// Tables builds the SUMMARY, ASSETS, EXCLUDED and FAULTS tables.
func (s *Service) Tables(ctx context.Context, report domain.ProtocolEarningsReport, at time.Time) []Table {
	return []Table{
		s.summaryTable(ctx, report, at),
		assetsTable(report),
		excludedTable(report),
		faultsTable(report),
	}
}

func (s *Service) summaryTable(ctx context.Context, report domain.ProtocolEarningsReport, at time.Time) Table {
	total := report.TotalEarnedUsd.Decimal()

	changes := make([]any, len(changePeriods))
	for i, days := range changePeriods {
		changes[i] = ptrCell(s.totalChange(ctx, total, at.AddDate(0, 0, -days)))
	}

	return Table{
		Name:   "SUMMARY",
		Header: []string{"Metric", "Value", "Week", "Month", "Quarter", "Year"},
		Rows: [][]any{
			append([]any{"Total earned USD", total}, changes...),
			{"Vaults included", len(report.Assets), nil, nil, nil, nil},
			{"Vaults excluded", len(report.Excluded), nil, nil, nil, nil},
			{"Faults", len(report.Faults), nil, nil, nil, nil},
			{"Generated at", at.Format(time.RFC3339), nil, nil, nil, nil},
		},
	}
}

// totalChange returns (current − past) / past for the snapshot nearest before date, or nil.
func (s *Service) totalChange(ctx context.Context, current decimal.Decimal, date time.Time) *decimal.Decimal {
	if s.history == nil {
		return nil
	}
	snap, err := s.history.GetNearestBefore(ctx, s.network, date)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			slog.Warn("export: historical snapshot unavailable", "date", date.Format(time.DateOnly), "error", err)
		}
		return nil
	}
	past, err := snap.Report()
	if err != nil {
		slog.Warn("export: failed to decode historical snapshot", "date", date.Format(time.DateOnly), "error", err)
		return nil
	}
	prev := past.TotalEarnedUsd.Decimal()
	if prev.IsZero() {
		return nil
	}
	pct := current.Sub(prev).DivRound(prev, 6)
	return &pct
}

func assetsTable(report domain.ProtocolEarningsReport) Table {
	t := Table{Name: "ASSETS", Header: []string{"Vault", "Token", "Earned", "Earned USD"}}
	for _, a := range report.Assets {
		t.Rows = append(t.Rows, []any{a.AssetID.Hex(), a.TokenID.Hex(), a.AmountEarned.Decimal(), a.AmountEarnedUsd.Decimal()})
	}
	return t
}

func excludedTable(report domain.ProtocolEarningsReport) Table {
	t := Table{Name: "EXCLUDED", Header: []string{"Vault", "Token", "Reason", "Earned", "Earned USD"}}
	for _, e := range report.Excluded {
		var usd any
		if e.AmountEarnedUsd != nil {
			usd = e.AmountEarnedUsd.Decimal()
		}
		t.Rows = append(t.Rows, []any{e.AssetID.Hex(), e.TokenID.Hex(), string(e.Reason), e.AmountEarned.Decimal(), usd})
	}
	return t
}

func faultsTable(report domain.ProtocolEarningsReport) Table {
	t := Table{Name: "FAULTS", Header: []string{"Item", "Kind", "Message"}}
	for _, f := range report.Faults {
		t.Rows = append(t.Rows, []any{f.ItemID, string(f.Kind), f.Message})
	}
	return t
}

// historyRow builds the HISTORY header and one data row for the current run.
func historyRow(report domain.ProtocolEarningsReport, at time.Time) ([]string, []any) {
	header := []string{"Date", "Total earned USD", "Vaults included", "Vaults excluded", "Faults"}
	row := []any{
		at.Format("02.01.2006"),
		report.TotalEarnedUsd.Decimal(),
		len(report.Assets),
		len(report.Excluded),
		len(report.Faults),
	}
	return header, row
}

func ptrCell(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
