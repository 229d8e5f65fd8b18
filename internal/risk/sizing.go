// Package risk implements Risk & Sizing (§4.6): small-account mode, the
// notional sizing algorithm, ATR-preferred stop derivation, and per-ticker
// cooldown enforcement.
package risk

import (
	"math"
	"sync"
	"time"

	"github.com/mazotrader/orchestrator/internal/broker"
	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Config holds every tunable named by §4.6.
type Config struct {
	SmallAccountThreshold         float64 // equity at/below which small-account mode engages
	SmallAccountMaxSignals        int
	SmallAccountMinConfidence     float64
	SmallAccountMaxTickerPrice    float64
	SmallAccountPositionCap       int
	ExplicitTargetNotionalPerTrade float64
	MinBuyingPowerPct             float64 // fraction of buying power that must stay unused
	PerTickerCapPct               float64 // fraction of buying power any single ticker may consume
	ATRStopMultiplier             float64
	ATRTakeProfitMultiplier       float64
	TradeCooldownMinutes          int
	AllowFractional               bool
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		SmallAccountThreshold:          2000,
		SmallAccountMaxSignals:         2,
		SmallAccountMinConfidence:      70,
		SmallAccountMaxTickerPrice:     50,
		SmallAccountPositionCap:        5,
		ExplicitTargetNotionalPerTrade: 100,
		MinBuyingPowerPct:              0.10,
		PerTickerCapPct:                0.25,
		ATRStopMultiplier:              2.0,
		ATRTakeProfitMultiplier:        4.0,
		TradeCooldownMinutes:           15,
		AllowFractional:                true,
	}
}

// Mode describes the sizing regime an account is currently in.
type Mode struct {
	SmallAccount  bool
	MaxSignals    int
	MinConfidence float64
	MaxTickerPrice float64
	PositionCap   int
}

// Sizer computes order sizes and tracks per-ticker cooldowns. Safe for
// concurrent use; the only mutable state is the cooldown map.
type Sizer struct {
	cfg Config

	mu          sync.Mutex
	lastTradeAt map[string]time.Time
}

// NewSizer builds a Sizer from cfg.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg, lastTradeAt: make(map[string]time.Time)}
}

// ModeFor derives the active sizing regime for an account snapshot (§4.6).
func (s *Sizer) ModeFor(account domain.Account) Mode {
	if account.Equity > s.cfg.SmallAccountThreshold {
		return Mode{MaxSignals: 3, MinConfidence: 65, PositionCap: 0}
	}
	return Mode{
		SmallAccount:   true,
		MaxSignals:     s.cfg.SmallAccountMaxSignals,
		MinConfidence:  s.cfg.SmallAccountMinConfidence,
		MaxTickerPrice: s.cfg.SmallAccountMaxTickerPrice,
		PositionCap:    s.cfg.SmallAccountPositionCap,
	}
}

// SizeResult is the outcome of ComputeSize.
type SizeResult struct {
	Qty             float64
	TargetNotional  float64
	Fractionable    bool
	ConversionNote  string
}

// ComputeSize applies the sizing algorithm from §4.6: target_notional =
// min(position_size_pct*equity, explicit_target_notional_per_trade),
// divided by entry price, then the fractional policy. Rejects with
// PreconditionFailed if the target notional would exceed either the
// remaining-buying-power floor or the per-ticker cap. The check runs before
// the fractional policy rounds the quantity; the notional of the rounded
// quantity is not checked again, so whole-share rounding can return a size
// above those limits.
func (s *Sizer) ComputeSize(signal domain.TradingSignal, account domain.Account, fractionable bool) (SizeResult, error) {
	if signal.EntryPrice <= 0 {
		return SizeResult{}, &tradeerrors.PreconditionFailed{Reason: "entry price must be positive"}
	}

	byPct := signal.PositionSizePct * account.Equity
	targetNotional := byPct
	if s.cfg.ExplicitTargetNotionalPerTrade > 0 && s.cfg.ExplicitTargetNotionalPerTrade < targetNotional {
		targetNotional = s.cfg.ExplicitTargetNotionalPerTrade
	}

	maxAllowedByBuyingPower := (1 - s.cfg.MinBuyingPowerPct) * account.BuyingPower
	if targetNotional > maxAllowedByBuyingPower {
		return SizeResult{}, &tradeerrors.PreconditionFailed{Reason: "target notional exceeds available buying power"}
	}

	perTickerCap := s.cfg.PerTickerCapPct * account.BuyingPower
	if s.cfg.PerTickerCapPct > 0 && targetNotional > perTickerCap {
		return SizeResult{}, &tradeerrors.PreconditionFailed{Reason: "target notional exceeds per-ticker cap"}
	}

	rawQty := round4(targetNotional / signal.EntryPrice)
	qty := rawQty
	note := ""
	if !isWholeShares(qty) {
		qty, _, _, note = broker.ApplyFractionalPolicy(signal.Ticker, qty, s.cfg.AllowFractional, fractionable, domain.OrderTypeMarket, domain.TIFDay)
	}

	return SizeResult{
		Qty:            qty,
		TargetNotional: qty * signal.EntryPrice,
		Fractionable:   fractionable,
		ConversionNote: note,
	}, nil
}

// ComputeStops derives stop-loss/take-profit from ATR when available,
// otherwise from fixed percent tiers keyed by notional size (§4.6).
func (s *Sizer) ComputeStops(direction domain.Direction, entry float64, atr *float64, notional float64) (stopLoss, takeProfit float64) {
	if atr != nil && *atr > 0 {
		dist := *atr * s.cfg.ATRStopMultiplier
		tpDist := *atr * s.cfg.ATRTakeProfitMultiplier
		if direction == domain.DirectionLong {
			return entry - dist, entry + tpDist
		}
		return entry + dist, entry - tpDist
	}

	pct := fixedStopPctForNotional(notional)
	if direction == domain.DirectionLong {
		return entry * (1 - pct), entry * (1 + pct*2)
	}
	return entry * (1 + pct), entry * (1 - pct*2)
}

func fixedStopPctForNotional(notional float64) float64 {
	switch {
	case notional < 500:
		return 0.03 // small
	case notional < 5000:
		return 0.02 // medium
	default:
		return 0.015 // large
	}
}

// CheckCooldown returns PreconditionFailed if ticker traded within the
// configured cooldown window.
func (s *Sizer) CheckCooldown(ticker string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastTradeAt[ticker]
	if !ok {
		return nil
	}
	cooldown := time.Duration(s.cfg.TradeCooldownMinutes) * time.Minute
	if now.Sub(last) < cooldown {
		return &tradeerrors.PreconditionFailed{Reason: "ticker " + ticker + " is in cooldown"}
	}
	return nil
}

// RecordTrade marks ticker as traded at now, starting its cooldown.
func (s *Sizer) RecordTrade(ticker string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTradeAt[ticker] = now
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func isWholeShares(qty float64) bool {
	return qty == math.Trunc(qty)
}
