package pricedata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backlab/internal/domain"
	"backlab/internal/store"
)

// Compile-time interface check.
var _ Source = (*CachedSource)(nil)

// CachedSource serves bars from a local BarStore and falls back to a remote
// Source on a cache miss, writing fetched bars through to the cache. A range
// with any cached bars is served entirely from the cache; refreshing stale
// ranges is the fetch tool's job.
type CachedSource struct {
	cache  store.BarStore
	remote Source
	log    *slog.Logger
}

// NewCachedSource composes a bar cache with a remote source. remote may be
// nil, in which case misses are errors.
func NewCachedSource(cache store.BarStore, remote Source) *CachedSource {
	return &CachedSource{
		cache:  cache,
		remote: remote,
		log:    slog.Default().With("source", "cached"),
	}
}

// DailyBars returns cached bars for the range when present, otherwise
// fetches from the remote source and stores the result.
func (s *CachedSource) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	bars, err := s.cache.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading bar cache: %w", err)
	}
	if len(bars) > 0 {
		s.log.Debug("cache hit", "symbol", symbol, "bars", len(bars))
		return bars, nil
	}

	if s.remote == nil {
		return nil, &domain.DataError{Reason: fmt.Sprintf("no cached bars for %s and no remote source configured", symbol)}
	}

	bars, err = s.remote.DailyBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		if err := s.cache.WriteBars(ctx, symbol, bars); err != nil {
			// The run can proceed on the fetched bars; only the cache is stale.
			s.log.Warn("writing bars to cache failed", "symbol", symbol, "error", err)
		}
	}
	return bars, nil
}
