package broker

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// SubmitOrderParams is the caller-supplied intent before fractional-policy
// normalization.
type SubmitOrderParams struct {
	Symbol        string
	Qty           float64
	Side          domain.OrderSide
	Type          domain.OrderType
	TIF           domain.TimeInForce
	LimitPrice    *float64
	StopPrice     *float64
	ClientOrderID string
}

// OrderResult is the outcome of submit_order, including a note when the
// fractional policy rewrote the caller's request.
type OrderResult struct {
	Order domain.Order
	Note  string
}

func orderFromWire(w wireOrder) domain.Order {
	var filledAvg float64
	if w.FilledAvgPrice != nil {
		filledAvg = parseFloat(*w.FilledAvgPrice)
	}
	submittedAt, _ := time.Parse(time.RFC3339, w.SubmittedAt)
	var filledAt *time.Time
	if w.FilledAt != nil {
		if t, err := time.Parse(time.RFC3339, *w.FilledAt); err == nil {
			filledAt = &t
		}
	}
	var limitPrice, stopPrice *float64
	if w.LimitPrice != nil {
		v := parseFloat(*w.LimitPrice)
		limitPrice = &v
	}
	if w.StopPrice != nil {
		v := parseFloat(*w.StopPrice)
		stopPrice = &v
	}
	return domain.Order{
		ID:             w.ID,
		ClientOrderID:  w.ClientOrderID,
		Symbol:         w.Symbol,
		Side:           domain.OrderSide(w.Side),
		Type:           domain.OrderType(w.Type),
		Qty:            parseFloat(w.Qty),
		FilledQty:      parseFloat(w.FilledQty),
		FilledAvgPrice: filledAvg,
		Status:         domain.OrderStatus(w.Status),
		TimeInForce:    domain.TimeInForce(w.TimeInForce),
		LimitPrice:     limitPrice,
		StopPrice:      stopPrice,
		SubmittedAt:    submittedAt,
		FilledAt:       filledAt,
	}
}

// SubmitOrder applies the fractional order policy (§4.1) and submits.
//
// Policy: round qty to 4 decimals. If qty is not integer: if allow_fractional
// is off, round up to whole shares (min 1); else consult is_fractionable; if
// false, round to whole shares. Fractional orders are forced to MARKET+DAY,
// overriding the caller's type/TIF, with a logged/returned conversion note.
// If the broker rejects with a non-fractionable error, retry once with
// max(1, floor(qty)).
func (c *Client) SubmitOrder(ctx context.Context, p SubmitOrderParams) (OrderResult, error) {
	qty := round4(p.Qty)
	orderType := p.Type
	tif := p.TIF
	note := ""

	if !isWholeShares(qty) {
		fractionable := false
		// Asset cache lookup is best-effort; an error here falls back to
		// the conservative (non-fractionable) branch.
		if asset, err := c.GetAsset(ctx, p.Symbol); err == nil {
			fractionable = asset.Fractionable
		}
		qty, orderType, tif, note = ApplyFractionalPolicy(p.Symbol, qty, c.cfg.AllowFractional, fractionable, orderType, tif)
	}

	clientID := p.ClientOrderID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	result, err := c.submitOrderRaw(ctx, p.Symbol, qty, p.Side, orderType, tif, p.LimitPrice, p.StopPrice, clientID)
	if err != nil {
		if be, ok := err.(*tradeerrors.BrokerError); ok && be.IsNonFractionable() {
			retryQty := math.Max(1, math.Floor(qty))
			retryResult, retryErr := c.submitOrderRaw(ctx, p.Symbol, retryQty, p.Side, domain.OrderTypeMarket, domain.TIFDay, nil, nil, clientID)
			if retryErr != nil {
				return OrderResult{}, retryErr
			}
			return OrderResult{
				Order: retryResult,
				Note:  fmt.Sprintf("broker rejected fractional order; retried with %.0f whole shares", retryQty),
			}, nil
		}
		return OrderResult{}, err
	}

	return OrderResult{Order: result, Note: note}, nil
}

func (c *Client) submitOrderRaw(ctx context.Context, symbol string, qty float64, side domain.OrderSide, typ domain.OrderType, tif domain.TimeInForce, limitPrice, stopPrice *float64, clientID string) (domain.Order, error) {
	req := wireOrderRequest{
		Symbol:        symbol,
		Qty:           strconv.FormatFloat(qty, 'f', -1, 64),
		Side:          string(side),
		Type:          string(typ),
		TimeInForce:   string(tif),
		ClientOrderID: clientID,
	}
	if limitPrice != nil {
		s := strconv.FormatFloat(*limitPrice, 'f', 2, 64)
		req.LimitPrice = &s
	}
	if stopPrice != nil {
		s := strconv.FormatFloat(*stopPrice, 'f', 2, 64)
		req.StopPrice = &s
	}

	body, _, err := c.do(ctx, "submit_order", http.MethodPost, c.tradingURL("/orders"), req)
	if err != nil {
		return domain.Order{}, err
	}
	var w wireOrder
	if err := decodeInto(body, &w); err != nil {
		return domain.Order{}, err
	}
	return orderFromWire(w), nil
}

// GetOrders lists orders, optionally filtered by status/symbols, capped at limit.
func (c *Client) GetOrders(ctx context.Context, status string, limit int, symbols []string) ([]domain.Order, error) {
	url := c.tradingURL(fmt.Sprintf("/orders?status=%s&limit=%d", status, limit))
	if len(symbols) > 0 {
		url += "&symbols=" + joinComma(symbols)
	}
	body, _, err := c.do(ctx, "get_orders", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var wires []wireOrder
	if err := decodeInto(body, &wires); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(wires))
	for _, w := range wires {
		out = append(out, orderFromWire(w))
	}
	return out, nil
}

// GetOrder fetches a single order by broker id.
func (c *Client) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	body, _, err := c.do(ctx, "get_order", http.MethodGet, c.tradingURL("/orders/"+id), nil)
	if err != nil {
		return domain.Order{}, err
	}
	var w wireOrder
	if err := decodeInto(body, &w); err != nil {
		return domain.Order{}, err
	}
	return orderFromWire(w), nil
}

// CancelOrder cancels a single open order.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	_, _, err := c.do(ctx, "cancel_order", http.MethodDelete, c.tradingURL("/orders/"+id), nil)
	return err
}

// CancelAllOrders cancels every open order.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	_, _, err := c.do(ctx, "cancel_all_orders", http.MethodDelete, c.tradingURL("/orders"), nil)
	return err
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func isWholeShares(qty float64) bool {
	return qty == math.Trunc(qty)
}

// ApplyFractionalPolicy is the fractional order policy from §4.1, split out
// so Risk & Sizing can predict the effective quantity before a submission
// is attempted. qty must already be rounded to 4 decimals and non-integer.
func ApplyFractionalPolicy(symbol string, qty float64, allowFractional, fractionable bool, requestedType domain.OrderType, requestedTIF domain.TimeInForce) (adjustedQty float64, orderType domain.OrderType, tif domain.TimeInForce, note string) {
	switch {
	case !allowFractional:
		adjustedQty = math.Max(1, math.Ceil(qty))
		return adjustedQty, requestedType, requestedTIF, fmt.Sprintf("rounded %.4f up to whole shares (%.0f): fractional trading disabled", qty, adjustedQty)
	case !fractionable:
		adjustedQty = math.Max(1, math.Ceil(qty))
		return adjustedQty, requestedType, requestedTIF, fmt.Sprintf("rounded %.4f up to whole shares (%.0f): %s not fractionable", qty, adjustedQty, symbol)
	default:
		return qty, domain.OrderTypeMarket, domain.TIFDay, fmt.Sprintf("fractional order %.4f shares forced to MARKET+DAY", qty)
	}
}

func joinComma(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += ","
		}
		out += x
	}
	return out
}
