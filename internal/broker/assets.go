package broker

import (
	"context"
	"net/http"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func assetFromWire(w wireAsset) domain.AssetInfo {
	return domain.AssetInfo{
		Symbol:            w.Symbol,
		Name:              w.Name,
		Exchange:          w.Exchange,
		AssetClass:        w.Class,
		Tradable:          w.Tradable,
		Fractionable:      w.Fractionable,
		Shortable:         w.Shortable,
		Marginable:        w.Marginable,
		MinOrderSize:      parseFloat(w.MinOrderSize),
		MinTradeIncrement: parseFloat(w.MinTradeIncrement),
		PriceIncrement:    parseFloat(w.PriceIncrement),
	}
}

// GetAsset returns tradability metadata for symbol, served from a
// process-lifetime cache (§5: insert-only, last writer wins). Entries are
// dropped only by ClearAssetCache or a process restart.
func (c *Client) GetAsset(ctx context.Context, symbol string) (domain.AssetInfo, error) {
	c.assetMu.RLock()
	if a, ok := c.assetCache[symbol]; ok {
		c.assetMu.RUnlock()
		return a, nil
	}
	c.assetMu.RUnlock()

	body, _, err := c.do(ctx, "get_asset", http.MethodGet, c.tradingURL("/assets/"+symbol), nil)
	if err != nil {
		return domain.AssetInfo{}, err
	}
	var w wireAsset
	if err := decodeInto(body, &w); err != nil {
		return domain.AssetInfo{}, err
	}
	asset := assetFromWire(w)

	c.assetMu.Lock()
	c.assetCache[symbol] = asset
	c.assetMu.Unlock()

	return asset, nil
}

// IsFractionable reports whether symbol can be traded in fractional shares.
func (c *Client) IsFractionable(ctx context.Context, symbol string) (bool, error) {
	asset, err := c.GetAsset(ctx, symbol)
	if err != nil {
		return false, err
	}
	return asset.Fractionable, nil
}

// ClearAssetCache drops every cached asset, forcing the next lookup to
// refetch. Intended for operator use (e.g. after a broker asset-class change).
func (c *Client) ClearAssetCache() {
	c.assetMu.Lock()
	c.assetCache = make(map[string]domain.AssetInfo)
	c.assetMu.Unlock()
}
