// Package positionmonitor implements the Position Monitor (§4.7): a
// periodic scan of open positions for stop-loss / take-profit breaches,
// with idempotent auto-exit.
package positionmonitor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/broker"
	"github.com/mazotrader/orchestrator/internal/telemetry"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Broker is the subset of the Broker Gateway the monitor consumes.
type Broker interface {
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetOrders(ctx context.Context, status string, limit int, symbols []string) ([]domain.Order, error)
	SubmitOrder(ctx context.Context, p broker.SubmitOrderParams) (broker.OrderResult, error)
}

// TradeRecorder receives notice of an auto-exit so Performance & Trade
// History can tag the closing leg's notes (§4.7).
type TradeRecorder interface {
	RecordAutoExit(ctx context.Context, symbol string, order domain.Order, reason string) error
}

// Rule is a custom per-position SL/TP override; a zero Rule means "use the
// position's own entry-derived defaults" — callers populate these from the
// DecisionContext that opened the position.
type Rule struct {
	StopLoss   *float64
	TakeProfit *float64
}

// Monitor holds the custom per-position rule set; all other state (the
// positions themselves, any open closing orders) is read fresh from the
// broker on every Scan.
type Monitor struct {
	broker   Broker
	alerter  *telemetry.Alerter
	recorder TradeRecorder
	log      zerolog.Logger

	mu    sync.RWMutex
	rules map[string]Rule
}

// New builds a Monitor. recorder may be nil if trade-note tagging is not
// needed by the caller (e.g. in tests).
func New(b Broker, alerter *telemetry.Alerter, recorder TradeRecorder, log zerolog.Logger) *Monitor {
	return &Monitor{
		broker:   b,
		alerter:  alerter,
		recorder: recorder,
		log:      log.With().Str("component", "position_monitor").Logger(),
		rules:    make(map[string]Rule),
	}
}

// SetRule installs a custom SL/TP override for symbol, replacing any prior
// rule for that symbol.
func (m *Monitor) SetRule(symbol string, rule Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[symbol] = rule
}

// ClearRule removes symbol's custom rule, reverting to position defaults.
func (m *Monitor) ClearRule(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, symbol)
}

func (m *Monitor) ruleFor(symbol string) (Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[symbol]
	return r, ok
}

// ScanResult summarizes one Scan pass.
type ScanResult struct {
	PositionsChecked int
	ExitsSubmitted   int
	Errors           map[string]string
}

// Scan pulls positions, evaluates each against its SL/TP rule, and submits
// closing orders for any breach. Idempotent: a symbol with an already-open
// closing order is skipped.
func (m *Monitor) Scan(ctx context.Context) ScanResult {
	result := ScanResult{Errors: make(map[string]string)}

	positions, err := m.broker.GetPositions(ctx)
	if err != nil {
		result.Errors["get_positions"] = err.Error()
		return result
	}
	result.PositionsChecked = len(positions)

	openOrders, err := m.broker.GetOrders(ctx, "open", 500, nil)
	if err != nil {
		result.Errors["get_orders"] = err.Error()
		openOrders = nil
	}
	pendingClose := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		pendingClose[o.Symbol] = true
	}

	for _, pos := range positions {
		if pendingClose[pos.Symbol] {
			continue
		}

		price, err := m.broker.GetCurrentPrice(ctx, pos.Symbol)
		if err != nil {
			result.Errors[pos.Symbol] = err.Error()
			continue
		}

		breach, reason := m.evaluate(pos, price)
		if !breach {
			continue
		}

		if err := m.submitExit(ctx, pos, reason); err != nil {
			result.Errors[pos.Symbol] = err.Error()
			continue
		}
		result.ExitsSubmitted++
	}

	return result
}

func (m *Monitor) evaluate(pos domain.Position, currentPrice float64) (breach bool, reason string) {
	stopLoss, takeProfit := m.effectiveLevels(pos)
	if stopLoss == nil && takeProfit == nil {
		return false, ""
	}

	isLong := pos.Side == domain.PositionSideLong
	if stopLoss != nil {
		if (isLong && currentPrice <= *stopLoss) || (!isLong && currentPrice >= *stopLoss) {
			return true, "stop_loss"
		}
	}
	if takeProfit != nil {
		if (isLong && currentPrice >= *takeProfit) || (!isLong && currentPrice <= *takeProfit) {
			return true, "take_profit"
		}
	}
	return false, ""
}

// effectiveLevels applies a custom rule if one is installed, otherwise
// derives a default SL/TP band around the position's own entry (§4.7:
// "custom per-position rules override defaults").
func (m *Monitor) effectiveLevels(pos domain.Position) (stopLoss, takeProfit *float64) {
	if r, ok := m.ruleFor(pos.Symbol); ok && (r.StopLoss != nil || r.TakeProfit != nil) {
		return r.StopLoss, r.TakeProfit
	}

	const defaultStopPct = 0.05
	const defaultTakeProfitPct = 0.10
	sl := pos.AvgEntryPrice * (1 - defaultStopPct)
	tp := pos.AvgEntryPrice * (1 + defaultTakeProfitPct)
	if pos.Side == domain.PositionSideShort {
		sl = pos.AvgEntryPrice * (1 + defaultStopPct)
		tp = pos.AvgEntryPrice * (1 - defaultTakeProfitPct)
	}
	return &sl, &tp
}

func (m *Monitor) submitExit(ctx context.Context, pos domain.Position, reason string) error {
	side := domain.OrderSideSell
	if pos.Side == domain.PositionSideShort {
		side = domain.OrderSideBuy
	}

	result, err := m.broker.SubmitOrder(ctx, broker.SubmitOrderParams{
		Symbol: pos.Symbol,
		Qty:    pos.Qty,
		Side:   side,
		Type:   domain.OrderTypeMarket,
		TIF:    domain.TIFDay,
	})
	if err != nil {
		return err
	}

	if m.recorder != nil {
		if err := m.recorder.RecordAutoExit(ctx, pos.Symbol, result.Order, reason); err != nil {
			m.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("auto-exit order submitted but trade history tagging failed")
		}
	}

	if m.alerter != nil {
		m.alerter.Raise(telemetry.SeverityWarning, "position_monitor",
			"auto-exit "+reason+" triggered for "+pos.Symbol)
	}

	return nil
}
