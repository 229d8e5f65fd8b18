package cycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/broker"
	"github.com/mazotrader/orchestrator/internal/risk"
	"github.com/mazotrader/orchestrator/internal/telemetry"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

type fakePrices struct{}

func (f *fakePrices) GetPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar
	for i := 0; i < 30; i++ {
		bars = append(bars, domain.PriceBar{
			Date: start.AddDate(0, 0, i), Open: 100, High: 101, Low: 99, Close: 100 + float64(i)*0.1, Volume: 1_000_000,
		})
	}
	return bars, nil
}

type fakeStrategies struct{ blockUntil chan struct{} }

func (f *fakeStrategies) ScanUniverse(universe map[string][]domain.PriceBar, strategies []string, minConfidence float64) map[string][]domain.TradingSignal {
	if f.blockUntil != nil {
		<-f.blockUntil
	}
	out := make(map[string][]domain.TradingSignal)
	for ticker := range universe {
		out[ticker] = []domain.TradingSignal{{
			Ticker: ticker, Strategy: "momentum", Direction: domain.DirectionLong,
			Strength: domain.StrengthModerate, Confidence: 75, EntryPrice: 100, PositionSizePct: 0.05,
		}}
	}
	return out
}

type fakeBroker struct{}

func (f *fakeBroker) SyncPortfolio(ctx context.Context) (broker.PortfolioSnapshot, error) {
	return broker.PortfolioSnapshot{Account: domain.Account{Equity: 10000, BuyingPower: 10000}}, nil
}
func (f *fakeBroker) CheckPDTStatus(ctx context.Context) (broker.PDTStatus, error) {
	return broker.PDTStatus{CanDayTrade: true}, nil
}
func (f *fakeBroker) IsFractionable(ctx context.Context, symbol string) (bool, error) { return true, nil }
func (f *fakeBroker) ExecuteDecision(ctx context.Context, d broker.DecisionInput) (broker.OrderResult, error) {
	return broker.OrderResult{Order: domain.Order{Symbol: d.Ticker, Qty: d.Quantity}}, nil
}

type fakeDecider struct{}

func (f *fakeDecider) Decide(ctx context.Context, signal domain.TradingSignal, researchSummary string, portfolio broker.PortfolioSnapshot) (Decision, error) {
	return Decision{Action: domain.ActionBuy, Quantity: 1, Confidence: 80}, nil
}

func newTestEngine(t *testing.T, strategies StrategyEngine) *Engine {
	cfg := DefaultConfig()
	cfg.ScreeningWorkers = 2
	events := telemetry.NewEventLogger(nil, zerolog.Nop())
	sizer := risk.NewSizer(risk.DefaultConfig())
	return New(cfg, &fakePrices{}, strategies, nil, &fakeDecider{}, &fakeBroker{}, sizer, nil, nil, events, nil, zerolog.Nop())
}

func TestRunTradingCycleHappyPath(t *testing.T) {
	engine := newTestEngine(t, &fakeStrategies{})
	result, err := engine.Run(context.Background(), Request{Tickers: []string{"AAPL", "MSFT"}, ExecuteTrades: true})
	require.NoError(t, err)
	assert.Equal(t, domain.CycleCompleted, result.State)
	assert.Equal(t, 2, result.TickersScreened)
	assert.Greater(t, result.SignalsFound, 0)
}

func TestRunTradingCycleConflict(t *testing.T) {
	block := make(chan struct{})
	engine := newTestEngine(t, &fakeStrategies{blockUntil: block})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = engine.Run(context.Background(), Request{Tickers: []string{"AAPL"}})
	}()

	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	_, err := engine.Run(context.Background(), Request{Tickers: []string{"AAPL"}})
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Less(t, elapsed, 50*time.Millisecond)

	close(block)
	wg.Wait()
}
