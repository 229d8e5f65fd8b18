package broker

import (
	"context"
	"net/http"
)

// Quote is a symbol's latest bid/ask.
type Quote struct {
	BidPrice float64
	AskPrice float64
}

// GetQuote fetches the latest NBBO quote from the market-data endpoint.
func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	body, _, err := c.do(ctx, "get_quote", http.MethodGet, c.dataURL("/stocks/"+symbol+"/quotes/latest"), nil)
	if err != nil {
		return Quote{}, err
	}
	var w wireQuote
	if err := decodeInto(body, &w); err != nil {
		return Quote{}, err
	}
	return Quote{BidPrice: parseFloat(w.Quote.BidPrice), AskPrice: parseFloat(w.Quote.AskPrice)}, nil
}

// GetLastTrade fetches the last executed trade price.
func (c *Client) GetLastTrade(ctx context.Context, symbol string) (float64, error) {
	body, _, err := c.do(ctx, "get_last_trade", http.MethodGet, c.dataURL("/stocks/"+symbol+"/trades/latest"), nil)
	if err != nil {
		return 0, err
	}
	var w wireTrade
	if err := decodeInto(body, &w); err != nil {
		return 0, err
	}
	return parseFloat(w.Trade.Price), nil
}

// GetCurrentPrice resolves a best-effort current price via the fallback
// chain (§4.1): last trade, then quote midpoint, then the position's
// current_price if one is open. Returns an error only if every leg fails.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if price, err := c.GetLastTrade(ctx, symbol); err == nil && price > 0 {
		return price, nil
	}

	if quote, err := c.GetQuote(ctx, symbol); err == nil && (quote.BidPrice > 0 || quote.AskPrice > 0) {
		if quote.BidPrice > 0 && quote.AskPrice > 0 {
			return (quote.BidPrice + quote.AskPrice) / 2, nil
		}
		if quote.AskPrice > 0 {
			return quote.AskPrice, nil
		}
		return quote.BidPrice, nil
	}

	pos, err := c.GetPosition(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if pos != nil && pos.CurrentPrice > 0 {
		return pos.CurrentPrice, nil
	}

	return 0, &quoteUnavailable{symbol: symbol}
}

type quoteUnavailable struct{ symbol string }

func (e *quoteUnavailable) Error() string {
	return "no price available for " + e.symbol + ": last trade, quote, and position all empty"
}

// IsOpen satisfies telemetry.MarketCalendarChecker via Alpaca's /clock.
func (c *Client) IsOpen(ctx context.Context) (bool, error) {
	body, _, err := c.do(ctx, "get_clock", http.MethodGet, c.tradingURL("/clock"), nil)
	if err != nil {
		return false, err
	}
	var w wireClock
	if err := decodeInto(body, &w); err != nil {
		return false, err
	}
	return w.IsOpen, nil
}
