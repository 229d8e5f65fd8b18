package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// maxBarsPerPage caps a single bars request the way Alpaca's own API does;
// GetBars pages through NextPageToken until the range is exhausted.
const maxBarsPerPage = 10000

// GetBars fetches OHLCV bars for symbol over [start, end] at the given
// Alpaca timeframe ("1Day", "1Hour", ...), paging through
// next_page_token. Grounded on the pack's Alpaca bars client
// (market/historical.go GetKlinesRange), adapted onto this client's
// existing pacer/breaker/error-classification plumbing instead of a bare
// http.Client.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.PriceBar, error) {
	var out []domain.PriceBar
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("timeframe", timeframe)
		q.Set("start", start.Format(time.RFC3339))
		q.Set("end", end.Format(time.RFC3339))
		q.Set("limit", strconv.Itoa(maxBarsPerPage))
		q.Set("adjustment", "split")
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		reqURL := fmt.Sprintf("%s?%s", c.dataURL("/stocks/"+symbol+"/bars"), q.Encode())
		body, _, err := c.do(ctx, "get_bars", http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		var w wireBarsResponse
		if err := decodeInto(body, &w); err != nil {
			return nil, err
		}

		for _, b := range w.Bars {
			t, err := time.Parse(time.RFC3339, b.Timestamp)
			if err != nil {
				continue
			}
			out = append(out, domain.PriceBar{
				Date:   t,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: int64(b.Volume),
			})
		}

		if w.NextPageToken == "" || len(w.Bars) == 0 {
			break
		}
		pageToken = w.NextPageToken
	}

	return out, nil
}

// BarsFetcher adapts Client to priceprovider.Fetcher, fixed to a single
// timeframe ("1Day" by default, "1Hour" when USE_INTRADAY_DATA is set) so
// the rest of the system never has to think about bar granularity.
type BarsFetcher struct {
	client    *Client
	timeframe string
}

// NewBarsFetcher builds a priceprovider.Fetcher over client. intraday
// selects 1-hour bars instead of daily.
func NewBarsFetcher(client *Client, intraday bool) *BarsFetcher {
	tf := "1Day"
	if intraday {
		tf = "1Hour"
	}
	return &BarsFetcher{client: client, timeframe: tf}
}

// FetchPrices implements priceprovider.Fetcher.
func (f *BarsFetcher) FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	return f.client.GetBars(ctx, ticker, f.timeframe, start, end)
}
