package earnings

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/cache"
	"github.com/mtlprog/vaultstat/internal/domain"
)

// Service is the read surface served to API and CLI callers.
type Service interface {
	ProtocolEarnings(ctx context.Context) (domain.ProtocolEarningsReport, error)
	AssetEarnings(ctx context.Context, vault common.Address) (domain.EarningsReport, error)
	AccountEarnings(ctx context.Context, account common.Address) (domain.AccountEarningsReport, error)
}

// Cached decorates a Service with a response cache. Only successful, complete
// results are stored. Cache backend failures are logged and bypassed.
type Cached struct {
	next  Service
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps next with c using ttl for every entry.
func NewCached(next Service, c cache.Cache, ttl time.Duration) *Cached {
	if next == nil {
		panic("earnings.NewCached: next is nil")
	}
	if c == nil {
		panic("earnings.NewCached: cache is nil")
	}
	return &Cached{next: next, cache: c, ttl: ttl}
}

func (c *Cached) ProtocolEarnings(ctx context.Context) (domain.ProtocolEarningsReport, error) {
	const key = "earnings:protocol"
	var report domain.ProtocolEarningsReport
	if c.load(ctx, key, &report) {
		return report, nil
	}
	report, err := c.next.ProtocolEarnings(ctx)
	if err != nil {
		return report, err
	}
	if report.Complete() {
		c.store(ctx, key, report)
	}
	return report, nil
}

func (c *Cached) AssetEarnings(ctx context.Context, vault common.Address) (domain.EarningsReport, error) {
	key := "earnings:vault:" + strings.ToLower(vault.Hex())
	var report domain.EarningsReport
	if c.load(ctx, key, &report) {
		return report, nil
	}
	report, err := c.next.AssetEarnings(ctx, vault)
	if err != nil {
		return report, err
	}
	c.store(ctx, key, report)
	return report, nil
}

func (c *Cached) AccountEarnings(ctx context.Context, account common.Address) (domain.AccountEarningsReport, error) {
	key := "earnings:account:" + strings.ToLower(account.Hex())
	var report domain.AccountEarningsReport
	if c.load(ctx, key, &report) {
		return report, nil
	}
	report, err := c.next.AccountEarnings(ctx, account)
	if err != nil {
		return report, err
	}
	c.store(ctx, key, report)
	return report, nil
}

func (c *Cached) load(ctx context.Context, key string, dest any) bool {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("response cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("encoding cache entry failed", "key", key, "error", err)
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		slog.Warn("response cache write failed", "key", key, "error", err)
	}
}
