package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func TestModeForSmallAccount(t *testing.T) {
	sizer := NewSizer(DefaultConfig())
	mode := sizer.ModeFor(domain.Account{Equity: 1500})
	assert.True(t, mode.SmallAccount)
	assert.Equal(t, 2, mode.MaxSignals)

	mode = sizer.ModeFor(domain.Account{Equity: 50000})
	assert.False(t, mode.SmallAccount)
}

func TestComputeSizeRejectsOverBuyingPower(t *testing.T) {
	sizer := NewSizer(DefaultConfig())
	signal := domain.TradingSignal{Ticker: "AAPL", EntryPrice: 100, PositionSizePct: 0.5}
	account := domain.Account{Equity: 10000, BuyingPower: 50}

	_, err := sizer.ComputeSize(signal, account, true)
	require.Error(t, err)
}

func TestComputeSizeWholeShareFallback(t *testing.T) {
	sizer := NewSizer(DefaultConfig())
	signal := domain.TradingSignal{Ticker: "BRK.A", EntryPrice: 650000, PositionSizePct: 0.05}
	account := domain.Account{Equity: 100000, BuyingPower: 100000}

	result, err := sizer.ComputeSize(signal, account, false)
	require.NoError(t, err)
	assert.Equal(t, float64(int64(result.Qty)), result.Qty, "non-fractionable asset must round to whole shares")
}

func TestCooldownRejectsWithinWindow(t *testing.T) {
	sizer := NewSizer(DefaultConfig())
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sizer.RecordTrade("AAPL", now)

	err := sizer.CheckCooldown("AAPL", now.Add(5*time.Minute))
	assert.Error(t, err)

	err = sizer.CheckCooldown("AAPL", now.Add(20*time.Minute))
	assert.NoError(t, err)
}

func TestComputeStopsATRPreferred(t *testing.T) {
	sizer := NewSizer(DefaultConfig())
	atr := 2.0
	sl, tp := sizer.ComputeStops(domain.DirectionLong, 100, &atr, 1000)
	assert.Less(t, sl, 100.0)
	assert.Greater(t, tp, 100.0)
}
