// Package performance implements Performance & Trade History (§4.8):
// TradeRecord lifecycle, FIFO P&L reconciliation, rollup metrics, and the
// daily snapshot. Grounded on the teacher's TradeRepository (nullable-field
// helpers, scan-from-rows pattern), with the open-lot queue generalized
// from a single-ledger model to FIFO matching.
package performance

import (
	"math"

	"github.com/mazotrader/orchestrator/internal/trading/errors"
)

// Lot is one open buy (or short) leg awaiting a matching close.
type Lot struct {
	ID           string
	RemainingQty float64
	Price        float64
}

// Match is one FIFO-consumed chunk of a closing trade against an open lot.
type Match struct {
	LotID       string
	MatchedQty  float64
	EntryPrice  float64
	ExitPrice   float64
	RealizedPnL float64
	ReturnPct   float64
}

// Book holds the open-lot queues per ticker. Long positions consume from
// buyLots on a sell; short positions consume from shortLots on a cover.
// Guarded externally by the Tracker's mutex — Book itself assumes
// single-threaded access per call.
type Book struct {
	buyLots   map[string][]Lot
	shortLots map[string][]Lot
}

// NewBook creates an empty FIFO book.
func NewBook() *Book {
	return &Book{buyLots: make(map[string][]Lot), shortLots: make(map[string][]Lot)}
}

// OpenBuy enqueues a new long lot for ticker.
func (b *Book) OpenBuy(ticker, lotID string, qty, price float64) {
	b.buyLots[ticker] = append(b.buyLots[ticker], Lot{ID: lotID, RemainingQty: qty, Price: price})
}

// OpenShort enqueues a new short lot for ticker.
func (b *Book) OpenShort(ticker, lotID string, qty, price float64) {
	b.shortLots[ticker] = append(b.shortLots[ticker], Lot{ID: lotID, RemainingQty: qty, Price: price})
}

// Sell consumes oldest-first from ticker's long lots to match sellQty.
// Returns the matched chunks and any unmatched quantity (a short sale
// against no open lots, which the caller decides how to handle).
func (b *Book) Sell(ticker string, sellQty, sellPrice float64) ([]Match, float64) {
	return consume(b.buyLots, ticker, sellQty, sellPrice, false)
}

// Cover consumes oldest-first from ticker's short lots to match coverQty.
func (b *Book) Cover(ticker string, coverQty, coverPrice float64) ([]Match, float64) {
	return consume(b.shortLots, ticker, coverQty, coverPrice, true)
}

func consume(lots map[string][]Lot, ticker string, qty, price float64, short bool) ([]Match, float64) {
	queue := lots[ticker]
	var matches []Match
	remaining := qty

	i := 0
	for remaining > 1e-9 && i < len(queue) {
		lot := &queue[i]
		if lot.RemainingQty <= 1e-9 {
			i++
			continue
		}
		matchQty := math.Min(remaining, lot.RemainingQty)

		var pnl float64
		if short {
			pnl = (lot.Price - price) * matchQty
		} else {
			pnl = (price - lot.Price) * matchQty
		}
		returnPct := 0.0
		if lot.Price != 0 {
			if short {
				returnPct = (lot.Price - price) / lot.Price * 100
			} else {
				returnPct = (price - lot.Price) / lot.Price * 100
			}
		}

		matches = append(matches, Match{
			LotID:       lot.ID,
			MatchedQty:  matchQty,
			EntryPrice:  lot.Price,
			ExitPrice:   price,
			RealizedPnL: pnl,
			ReturnPct:   returnPct,
		})

		lot.RemainingQty -= matchQty
		remaining -= matchQty
		if lot.RemainingQty <= 1e-9 {
			i++
		}
	}

	queue = queue[i:]
	lots[ticker] = queue

	return matches, remaining
}

// TotalRealizedPnL sums the realized P&L across a set of matches.
func TotalRealizedPnL(matches []Match) float64 {
	sum := 0.0
	for _, m := range matches {
		sum += m.RealizedPnL
	}
	return sum
}

func validateMatches(matches []Match) error {
	for _, m := range matches {
		if m.MatchedQty < 0 {
			return &errors.InvariantViolation{Invariant: "fifo_non_negative_qty", Detail: "matched quantity went negative"}
		}
	}
	return nil
}
