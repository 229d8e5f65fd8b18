package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func TestBreakoutMicroLongConfidenceCapsAtScalpingTier(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 130}
	volumes := []float64{1e6, 1e6, 1e6, 1e6, 1e6, 1e6}
	bars := barsFrom(closes, volumes)

	sig := breakoutMicroStrategy{}.Analyze("AAPL", bars)
	require.NotNil(t, sig)

	assert.Equal(t, domain.DirectionLong, sig.Direction)
	assert.Equal(t, 75.0, sig.Confidence)
}

func TestBreakoutMicroInsufficientBars(t *testing.T) {
	closes := []float64{100, 101, 102}
	volumes := []float64{1e6, 1e6, 1e6}
	bars := barsFrom(closes, volumes)

	sig := breakoutMicroStrategy{}.Analyze("AAPL", bars)
	assert.Nil(t, sig)
}
