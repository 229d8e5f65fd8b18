package strategy

import (
	"sort"
	"strings"
	"time"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Strategy is the capability every signal producer implements (§9: dynamic
// dispatch via a registry of named polymorphic implementations, not
// inheritance). Implementations are pure and hold no mutable state.
type Strategy interface {
	Name() string
	Analyze(ticker string, bars []domain.PriceBar) *domain.TradingSignal
}

var allStrategies = map[string]Strategy{
	"momentum":        momentumStrategy{},
	"mean_reversion":   meanReversionStrategy{},
	"trend_following":  trendFollowingStrategy{},
	"vwap_scalper":     vwapScalperStrategy{},
	"breakout_micro":   breakoutMicroStrategy{},
}

var smallAccountStrategies = []string{"vwap_scalper", "breakout_micro"}

var defaultStrategies = []string{"momentum", "mean_reversion", "trend_following"}

// Engine holds the active strategy registry and runs them over a universe.
type Engine struct {
	active []string
}

// NewEngine builds an Engine running the default strategy set.
func NewEngine() *Engine {
	return &Engine{active: append([]string{}, defaultStrategies...)}
}

// SetStrategies reconfigures the active registry by name. Unknown names are
// ignored.
func (e *Engine) SetStrategies(names []string) {
	active := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := allStrategies[n]; ok {
			active = append(active, n)
		}
	}
	e.active = active
}

// EnableSmallAccountStrategies adds the scalping strategies suited to
// small-account mode (§4.6) without dropping whatever is already active.
func (e *Engine) EnableSmallAccountStrategies() {
	seen := make(map[string]bool, len(e.active))
	for _, n := range e.active {
		seen[n] = true
	}
	for _, n := range smallAccountStrategies {
		if !seen[n] {
			e.active = append(e.active, n)
			seen[n] = true
		}
	}
}

// Analyze runs every active strategy against ticker's bars and returns the
// signals produced (at most one per strategy).
func (e *Engine) Analyze(ticker string, bars []domain.PriceBar) []domain.TradingSignal {
	out := make([]domain.TradingSignal, 0, len(e.active))
	for _, name := range e.active {
		s, ok := allStrategies[name]
		if !ok {
			continue
		}
		if sig := s.Analyze(ticker, bars); sig != nil {
			sig.Timestamp = time.Now()
			out = append(out, *sig)
		}
	}
	return out
}

// ScanUniverse runs Analyze per ticker, filtering to strategies (if given)
// and to confidence >= minConfidence.
func (e *Engine) ScanUniverse(universe map[string][]domain.PriceBar, strategies []string, minConfidence float64) map[string][]domain.TradingSignal {
	active := e.active
	if len(strategies) > 0 {
		active = strategies
	}
	out := make(map[string][]domain.TradingSignal, len(universe))
	for ticker, bars := range universe {
		var signals []domain.TradingSignal
		for _, name := range active {
			s, ok := allStrategies[name]
			if !ok {
				continue
			}
			sig := s.Analyze(ticker, bars)
			if sig != nil && sig.Confidence >= minConfidence {
				sig.Timestamp = time.Now()
				signals = append(signals, *sig)
			}
		}
		if len(signals) > 0 {
			out[ticker] = signals
		}
	}
	return out
}

// GetBestSignals flattens a scan result and returns the top N signals by
// descending confidence.
func GetBestSignals(scan map[string][]domain.TradingSignal, topN int) []domain.TradingSignal {
	var all []domain.TradingSignal
	for _, sigs := range scan {
		all = append(all, sigs...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Confidence > all[j].Confidence })
	if topN > 0 && len(all) > topN {
		all = all[:topN]
	}
	return all
}

func assembleReasoning(tokens ...string) string {
	return strings.Join(tokens, "; ")
}

func strengthOf(confidence float64) domain.Strength {
	switch {
	case confidence >= 80:
		return domain.StrengthStrong
	case confidence >= 60:
		return domain.StrengthModerate
	default:
		return domain.StrengthWeak
	}
}
