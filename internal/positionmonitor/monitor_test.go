package positionmonitor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/broker"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

type fakeBroker struct {
	positions   []domain.Position
	openOrders  []domain.Order
	prices      map[string]float64
	submitted   []broker.SubmitOrderParams
}

func (f *fakeBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return f.positions, nil
}

func (f *fakeBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.prices[symbol], nil
}

func (f *fakeBroker) GetOrders(ctx context.Context, status string, limit int, symbols []string) ([]domain.Order, error) {
	return f.openOrders, nil
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, p broker.SubmitOrderParams) (broker.OrderResult, error) {
	f.submitted = append(f.submitted, p)
	return broker.OrderResult{Order: domain.Order{Symbol: p.Symbol, Qty: p.Qty, Side: p.Side}}, nil
}

func TestScanTriggersStopLoss(t *testing.T) {
	fb := &fakeBroker{
		positions: []domain.Position{
			{Symbol: "AAPL", Qty: 10, Side: domain.PositionSideLong, AvgEntryPrice: 100},
		},
		prices: map[string]float64{"AAPL": 94},
	}
	m := New(fb, nil, nil, zerolog.Nop())

	result := m.Scan(context.Background())
	require.Equal(t, 1, result.ExitsSubmitted)
	require.Len(t, fb.submitted, 1)
	assert.Equal(t, domain.OrderSideSell, fb.submitted[0].Side)
}

func TestScanIdempotentWithOpenOrder(t *testing.T) {
	fb := &fakeBroker{
		positions: []domain.Position{
			{Symbol: "AAPL", Qty: 10, Side: domain.PositionSideLong, AvgEntryPrice: 100},
		},
		openOrders: []domain.Order{{Symbol: "AAPL"}},
		prices:     map[string]float64{"AAPL": 94},
	}
	m := New(fb, nil, nil, zerolog.Nop())

	result := m.Scan(context.Background())
	assert.Equal(t, 0, result.ExitsSubmitted)
	assert.Empty(t, fb.submitted)
}

func TestScanNoBreachNoExit(t *testing.T) {
	fb := &fakeBroker{
		positions: []domain.Position{
			{Symbol: "AAPL", Qty: 10, Side: domain.PositionSideLong, AvgEntryPrice: 100},
		},
		prices: map[string]float64{"AAPL": 101},
	}
	m := New(fb, nil, nil, zerolog.Nop())

	result := m.Scan(context.Background())
	assert.Equal(t, 0, result.ExitsSubmitted)
}
