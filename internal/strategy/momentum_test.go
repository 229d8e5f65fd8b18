package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func barsFrom(closes []float64, volumes []float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.PriceBar{
			Date:   day.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: int64(volumes[i]),
		}
	}
	return bars
}

func TestMomentumLong_S1(t *testing.T) {
	closes := []float64{100, 100, 101, 102, 103, 104, 106, 108, 110, 112}
	volumes := []float64{1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1.4e6, 1.5e6, 1.7e6, 2.0e6}
	bars := barsFrom(closes, volumes)

	sig := momentumStrategy{}.Analyze("AAPL", bars)
	require.NotNil(t, sig)

	assert.Equal(t, domain.DirectionLong, sig.Direction)
	assert.GreaterOrEqual(t, sig.Confidence, 70.0)
	assert.LessOrEqual(t, sig.Confidence, 85.0)
	assert.Equal(t, 112.0, sig.EntryPrice)
	assert.Less(t, sig.StopLoss, sig.EntryPrice)
	assert.Greater(t, sig.TakeProfit, sig.EntryPrice)
	assert.True(t, strings.Contains(sig.Reasoning, "Volume"))
	assert.True(t, strings.Contains(sig.Reasoning, "momentum"))
}

func TestMomentumInsufficientBars(t *testing.T) {
	closes := []float64{100, 101, 102}
	volumes := []float64{1e6, 1e6, 1e6}
	bars := barsFrom(closes, volumes)

	sig := momentumStrategy{}.Analyze("AAPL", bars)
	assert.Nil(t, sig)
}

func TestMomentumFlatNoSignal(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 100, 100, 100}
	volumes := []float64{1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6}
	bars := barsFrom(closes, volumes)

	sig := momentumStrategy{}.Analyze("AAPL", bars)
	assert.Nil(t, sig)
}
