package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/telemetry"
)

func TestGetBarsPaginatesUntilTokenExhausted(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		resp := wireBarsResponse{
			Bars: []wireBar{
				{Timestamp: "2024-01-0" + string(rune('0'+page)) + "T00:00:00Z", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
			},
		}
		if page < 2 {
			resp.NextPageToken = "tok1"
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{DataBaseURL: srv.URL}, telemetry.NewRateLimitMonitor(), zerolog.Nop())

	bars, err := c.GetBars(context.Background(), "AAPL", "1Day", time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 2, page)
}

func TestBarsFetcherSelectsTimeframe(t *testing.T) {
	var gotTimeframe string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTimeframe = r.URL.Query().Get("timeframe")
		_ = json.NewEncoder(w).Encode(wireBarsResponse{})
	}))
	defer srv.Close()

	c := New(Config{DataBaseURL: srv.URL}, telemetry.NewRateLimitMonitor(), zerolog.Nop())

	daily := NewBarsFetcher(c, false)
	_, err := daily.FetchPrices(context.Background(), "AAPL", time.Now().AddDate(0, 0, -1), time.Now())
	require.NoError(t, err)
	require.Equal(t, "1Day", gotTimeframe)

	intraday := NewBarsFetcher(c, true)
	_, err = intraday.FetchPrices(context.Background(), "AAPL", time.Now().AddDate(0, 0, -1), time.Now())
	require.NoError(t, err)
	require.Equal(t, "1Hour", gotTimeframe)
}
