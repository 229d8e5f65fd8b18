package broker

import (
	"context"
	"fmt"
	"net/http"

	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func positionFromWire(w wirePosition) domain.Position {
	side := domain.PositionSideLong
	if w.Side == "short" {
		side = domain.PositionSideShort
	}
	return domain.Position{
		Symbol:          w.Symbol,
		Qty:             parseFloat(w.Qty),
		Side:            side,
		AvgEntryPrice:   parseFloat(w.AvgEntryPrice),
		CurrentPrice:    parseFloat(w.CurrentPrice),
		MarketValue:     parseFloat(w.MarketValue),
		CostBasis:       parseFloat(w.CostBasis),
		UnrealizedPL:    parseFloat(w.UnrealizedPL),
		UnrealizedPLPct: parseFloat(w.UnrealizedPLPC),
		ChangeToday:     parseFloat(w.ChangeToday),
	}
}

// GetPositions returns every open position.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	body, _, err := c.do(ctx, "get_positions", http.MethodGet, c.tradingURL("/positions"), nil)
	if err != nil {
		return nil, err
	}
	var wires []wirePosition
	if err := decodeInto(body, &wires); err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(wires))
	for _, w := range wires {
		out = append(out, positionFromWire(w))
	}
	return out, nil
}

// GetPosition returns the open position for symbol, or nil if none.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	body, _, err := c.do(ctx, "get_position", http.MethodGet, c.tradingURL("/positions/"+symbol), nil)
	if err != nil {
		if be, ok := err.(*tradeerrors.BrokerError); ok && be.Status == 404 {
			return nil, nil
		}
		return nil, err
	}
	var w wirePosition
	if err := decodeInto(body, &w); err != nil {
		return nil, err
	}
	pos := positionFromWire(w)
	return &pos, nil
}

// ClosePosition closes qty shares of symbol (or the whole position if qty
// is nil) via the broker's dedicated close endpoint.
func (c *Client) ClosePosition(ctx context.Context, symbol string, qty *float64) error {
	url := c.tradingURL("/positions/" + symbol)
	if qty != nil {
		url = fmt.Sprintf("%s?qty=%.4f", url, *qty)
	}
	_, _, err := c.do(ctx, "close_position", http.MethodDelete, url, nil)
	return err
}

// CloseAllPositions liquidates every open position.
func (c *Client) CloseAllPositions(ctx context.Context) error {
	_, _, err := c.do(ctx, "close_all_positions", http.MethodDelete, c.tradingURL("/positions"), nil)
	return err
}
