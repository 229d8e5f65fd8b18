// Package priceprovider wraps the external Price Provider collaborator
// (§6) with a local per-symbol SQLite cache, grounded on the teacher's
// HistoryDB/DailyPrice pattern (internal/modules/universe/history_db.go),
// generalized from a Yahoo-seeded history store to a write-through cache
// in front of whatever upstream Fetcher the composition root wires in.
package priceprovider

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Fetcher is the external Price Provider contract (§6): get_prices(ticker,
// start, end) -> [PriceBar], ordered ascending by date, possibly fewer bars
// than requested. Implemented by broker.BarsFetcher.
type Fetcher interface {
	FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error)
}

// Provider is cache-first: a hit returns cached bars without touching the
// Fetcher; a miss (or a cache covering less than the requested range)
// fetches upstream and writes through.
type Provider struct {
	cache   *Cache
	fetcher Fetcher
	log     zerolog.Logger
}

// New builds a Provider over cache, fetching from fetcher on a cache miss.
func New(cache *Cache, fetcher Fetcher, log zerolog.Logger) *Provider {
	return &Provider{cache: cache, fetcher: fetcher, log: log.With().Str("component", "price_provider").Logger()}
}

// GetPrices returns bars for ticker within [start, end], cache-first.
func (p *Provider) GetPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	cached, err := p.cache.Get(ticker, start, end)
	if err == nil && coversRange(cached, start, end) {
		return cached, nil
	}

	bars, err := p.fetcher.FetchPrices(ctx, ticker, start, end)
	if err != nil {
		if len(cached) > 0 {
			p.log.Warn().Err(err).Str("ticker", ticker).Msg("upstream fetch failed, serving stale cache")
			return cached, nil
		}
		return nil, err
	}

	if err := p.cache.Store(ticker, bars); err != nil {
		p.log.Warn().Err(err).Str("ticker", ticker).Msg("failed to write through to price cache")
	}
	return bars, nil
}

// coversRange is a coarse freshness check: the cache is considered to cover
// the window if its oldest bar is on or before start and its newest bar is
// on or after end minus three calendar days of slack (weekends/holidays).
func coversRange(bars []domain.PriceBar, start, end time.Time) bool {
	if len(bars) == 0 {
		return false
	}
	oldest := bars[0].Date
	newest := bars[len(bars)-1].Date
	return !oldest.After(start) && !newest.Before(end.AddDate(0, 0, -3))
}
