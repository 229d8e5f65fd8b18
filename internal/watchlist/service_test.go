package watchlist

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

type fakePrices struct {
	bars map[string][]domain.PriceBar
}

func (f *fakePrices) GetPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	return f.bars[ticker], nil
}

func newTestService(t *testing.T, prices PriceSource) *Service {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Migrate())

	return New(repo, prices, nil, zerolog.Nop())
}

func barsAt(day int, close, high float64) domain.PriceBar {
	return domain.PriceBar{Date: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC), Open: close, High: high, Low: close, Close: close, Volume: 1_000_000}
}

func TestCheckTriggersBelow(t *testing.T) {
	prices := &fakePrices{bars: map[string][]domain.PriceBar{
		"AAPL": {barsAt(1, 105, 106), barsAt(2, 98, 107)},
	}}
	svc := newTestService(t, prices)

	target := 100.0
	item, err := svc.AddItem(domain.WatchlistItem{Ticker: "AAPL", EntryCondition: domain.EntryBelow, EntryTarget: &target, PositionSizePct: 0.05, Priority: 5})
	require.NoError(t, err)

	triggered, err := svc.CheckTriggers(context.Background())
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, item.Ticker, triggered[0].Ticker)
	assert.Equal(t, domain.WatchlistTriggered, triggered[0].Status)
	require.NotNil(t, triggered[0].TriggeredPrice)
	assert.Equal(t, 98.0, *triggered[0].TriggeredPrice)
}

func TestCheckTriggersBreakout(t *testing.T) {
	history := make([]domain.PriceBar, 0, 21)
	for d := 1; d <= 20; d++ {
		history = append(history, barsAt(d, 100, 105))
	}
	today := barsAt(21, 110, 110)
	prices := &fakePrices{bars: map[string][]domain.PriceBar{"TSLA": append(history, today)}}
	svc := newTestService(t, prices)

	_, err := svc.AddItem(domain.WatchlistItem{Ticker: "TSLA", EntryCondition: domain.EntryBreakout, PositionSizePct: 0.05, Priority: 3})
	require.NoError(t, err)

	triggered, err := svc.CheckTriggers(context.Background())
	require.NoError(t, err)
	require.Len(t, triggered, 1)
}

func TestCheckTriggersExpiresStaleItems(t *testing.T) {
	prices := &fakePrices{bars: map[string][]domain.PriceBar{"MSFT": {barsAt(1, 100, 101)}}}
	svc := newTestService(t, prices)

	target := 50.0
	item, err := svc.AddItem(domain.WatchlistItem{
		Ticker: "MSFT", EntryCondition: domain.EntryBelow, EntryTarget: &target,
		PositionSizePct: 0.05, Priority: 1, ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	triggered, err := svc.CheckTriggers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, triggered)

	got, err := svc.repo.GetByID(item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WatchlistExpired, got.Status)
}

func TestAutoEnrichFromRankingCapsPerSector(t *testing.T) {
	svc := newTestService(t, &fakePrices{})

	ranked := []RankedStock{
		{Symbol: "AAA", Sector: "tech", Score: 95},
		{Symbol: "BBB", Sector: "tech", Score: 90},
		{Symbol: "CCC", Sector: "tech", Score: 85},
		{Symbol: "DDD", Sector: "health", Score: 80},
	}

	added, err := svc.AutoEnrichFromRanking(ranked, 70, 2, 10)
	require.NoError(t, err)
	require.Len(t, added, 3)
	assert.Equal(t, "AAA", added[0].Ticker)
	assert.Equal(t, "BBB", added[1].Ticker)
	assert.Equal(t, "DDD", added[2].Ticker)
}
