package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

type cacheEntry struct {
	price     fixedpoint.Amount
	expiresAt time.Time
}

// Cached keeps successful prices from another Source for a fixed TTL.
// Failures are never cached.
type Cached struct {
	next    Source
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[common.Address]cacheEntry
	now     func() time.Time
}

// NewCached wraps next with a TTL price cache.
func NewCached(next Source, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		entries: make(map[common.Address]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cached) PriceUsd(ctx context.Context, token common.Address) (fixedpoint.Amount, error) {
	if price, ok := c.get(token); ok {
		return price, nil
	}
	price, err := c.next.PriceUsd(ctx, token)
	if err != nil {
		return fixedpoint.Amount{}, err
	}
	c.set(token, price)
	return price, nil
}

func (c *Cached) get(token common.Address) (fixedpoint.Amount, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[token]
	if !ok || c.now().After(entry.expiresAt) {
		return fixedpoint.Amount{}, false
	}
	return entry.price, true
}

func (c *Cached) set(token common.Address, price fixedpoint.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[token] = cacheEntry{
		price:     price,
		expiresAt: c.now().Add(c.ttl),
	}
}
