package oracle

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

type memoEntry struct {
	done  chan struct{}
	price fixedpoint.Amount
	err   error
	// abandoned is set when the fetch failed on the fetcher's own context.
	abandoned bool
}

// Memo deduplicates price lookups within one computation pass: each token is
// fetched at most once, and concurrent callers for the same token share the result.
// Errors are memoized too, so a pass sees one consistent answer per token.
// Context errors are not: a later caller with a live context fetches again.
type Memo struct {
	next    Source
	mu      sync.Mutex
	entries map[common.Address]*memoEntry
}

// NewMemo creates a pass-scoped memo over next.
func NewMemo(next Source) *Memo {
	return &Memo{next: next, entries: make(map[common.Address]*memoEntry)}
}

func (m *Memo) PriceUsd(ctx context.Context, token common.Address) (fixedpoint.Amount, error) {
	for {
		m.mu.Lock()
		entry, ok := m.entries[token]
		if !ok {
			entry = &memoEntry{done: make(chan struct{})}
			m.entries[token] = entry
			m.mu.Unlock()

			entry.price, entry.err = m.next.PriceUsd(ctx, token)
			if entry.err != nil && ctx.Err() != nil {
				entry.abandoned = true
				m.mu.Lock()
				delete(m.entries, token)
				m.mu.Unlock()
			}
			close(entry.done)
			return entry.price, entry.err
		}
		m.mu.Unlock()

		select {
		case <-entry.done:
			// The fetcher's context ended; a waiter with a live context fetches again.
			if entry.abandoned && ctx.Err() == nil {
				continue
			}
			return entry.price, entry.err
		case <-ctx.Done():
			return fixedpoint.Amount{}, ctx.Err()
		}
	}
}
