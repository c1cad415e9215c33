package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/vaultstat/internal/domain"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a stored protocol earnings report for one network and day.
type Snapshot struct {
	ID           int             `json:"id"`
	Network      string          `json:"network"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Report decodes the stored protocol report.
func (s Snapshot) Report() (domain.ProtocolEarningsReport, error) {
	var r domain.ProtocolEarningsReport
	if err := json.Unmarshal(s.Data, &r); err != nil {
		return domain.ProtocolEarningsReport{}, fmt.Errorf("decoding snapshot %d: %w", s.ID, err)
	}
	return r, nil
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, network string, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context, network string) (*Snapshot, error)
	GetByDate(ctx context.Context, network string, date time.Time) (*Snapshot, error)
	GetNearestBefore(ctx context.Context, network string, date time.Time) (*Snapshot, error)
	List(ctx context.Context, network string, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const snapshotColumns = `id, network, snapshot_date, data, created_at`

func (r *PgRepository) Save(ctx context.Context, network string, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO earnings_snapshots (network, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (network, snapshot_date)
		 DO UPDATE SET data = $3::jsonb, created_at = NOW()`,
		network, date, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context, network string) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM earnings_snapshots
		 WHERE network = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, network)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return s, nil
}

func (r *PgRepository) GetByDate(ctx context.Context, network string, date time.Time) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM earnings_snapshots
		 WHERE network = $1 AND snapshot_date = $2`, network, date)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return s, nil
}

// GetNearestBefore returns the latest snapshot dated on or before date.
func (r *PgRepository) GetNearestBefore(ctx context.Context, network string, date time.Time) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM earnings_snapshots
		 WHERE network = $1 AND snapshot_date <= $2
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, network, date)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot before %s: %w", date.Format(time.DateOnly), err)
	}
	return s, nil
}

func (r *PgRepository) List(ctx context.Context, network string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM earnings_snapshots
		 WHERE network = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, network, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	if err := row.Scan(&s.ID, &s.Network, &s.SnapshotDate, &s.Data, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
