package broker

import (
	"context"
	"fmt"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// DecisionInput is the subset of a DecisionContext execute_decision needs.
type DecisionInput struct {
	Ticker      string
	Action      domain.TradeAction
	Quantity    float64
	Fractionable bool
}

// ExecuteDecision maps a PM decision verb to a broker call (§4.1): buy/short
// submit an order, sell/cover close the matching position, hold or a
// non-positive quantity is a no-op success.
func (c *Client) ExecuteDecision(ctx context.Context, d DecisionInput) (OrderResult, error) {
	if d.Action == domain.ActionHold || d.Quantity <= 0 {
		return OrderResult{Note: "no-op: hold or non-positive quantity"}, nil
	}

	switch d.Action {
	case domain.ActionBuy:
		return c.SubmitOrder(ctx, SubmitOrderParams{
			Symbol: d.Ticker,
			Qty:    d.Quantity,
			Side:   domain.OrderSideBuy,
			Type:   domain.OrderTypeMarket,
			TIF:    domain.TIFDay,
		})
	case domain.ActionShort:
		return c.SubmitOrder(ctx, SubmitOrderParams{
			Symbol: d.Ticker,
			Qty:    d.Quantity,
			Side:   domain.OrderSideSell,
			Type:   domain.OrderTypeMarket,
			TIF:    domain.TIFDay,
		})
	case domain.ActionSell, domain.ActionCover:
		qty := d.Quantity
		if err := c.ClosePosition(ctx, d.Ticker, &qty); err != nil {
			return OrderResult{}, err
		}
		return OrderResult{Note: fmt.Sprintf("closed %.4f shares of %s", qty, d.Ticker)}, nil
	default:
		return OrderResult{}, fmt.Errorf("execute_decision: unknown action %q", d.Action)
	}
}

// PortfolioSnapshot is the downstream-facing view of account + positions,
// used as PortfolioSnapshot in DecisionContext and as sizing input.
type PortfolioSnapshot struct {
	Account   domain.Account
	Positions []domain.Position
}

// SyncPortfolio fetches the account and open positions in one call.
func (c *Client) SyncPortfolio(ctx context.Context) (PortfolioSnapshot, error) {
	acct, err := c.GetAccount(ctx)
	if err != nil {
		return PortfolioSnapshot{}, err
	}
	positions, err := c.GetPositions(ctx)
	if err != nil {
		return PortfolioSnapshot{}, err
	}
	return PortfolioSnapshot{Account: acct, Positions: positions}, nil
}
