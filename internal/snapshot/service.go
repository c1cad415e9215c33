package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtlprog/vaultstat/internal/domain"
)

// ProtocolEarner runs a protocol-wide earnings pass.
type ProtocolEarner interface {
	ProtocolEarnings(ctx context.Context) (domain.ProtocolEarningsReport, error)
}

// Service manages snapshot generation and retrieval.
type Service struct {
	earnings ProtocolEarner
	repo     Repository
}

// NewService creates a new snapshot Service.
func NewService(earnings ProtocolEarner, repo Repository) *Service {
	if earnings == nil {
		panic("snapshot.NewService: earnings is nil")
	}
	if repo == nil {
		panic("snapshot.NewService: repo is nil")
	}
	return &Service{earnings: earnings, repo: repo}
}

// Generate runs a protocol pass and stores it for network and date, replacing
// any snapshot already stored for that day. Reports with faults are stored with
// their fault list intact.
func (s *Service) Generate(ctx context.Context, network string, date time.Time) (domain.ProtocolEarningsReport, error) {
	report, err := s.earnings.ProtocolEarnings(ctx)
	if err != nil {
		return domain.ProtocolEarningsReport{}, fmt.Errorf("computing protocol earnings: %w", err)
	}
	if !report.Complete() {
		slog.Warn("storing incomplete protocol snapshot", "network", network, "faults", len(report.Faults))
	}

	data, err := json.Marshal(report)
	if err != nil {
		return domain.ProtocolEarningsReport{}, fmt.Errorf("marshaling report: %w", err)
	}

	day := date.UTC().Truncate(24 * time.Hour)
	if err := s.repo.Save(ctx, network, day, data); err != nil {
		return domain.ProtocolEarningsReport{}, fmt.Errorf("saving snapshot: %w", err)
	}

	return report, nil
}

// GetLatest retrieves the most recent snapshot for network.
func (s *Service) GetLatest(ctx context.Context, network string) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, network)
}

// GetByDate retrieves a snapshot for a specific date.
func (s *Service) GetByDate(ctx context.Context, network string, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, network, date)
}

// List retrieves recent snapshots.
func (s *Service) List(ctx context.Context, network string, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, network, limit)
}
