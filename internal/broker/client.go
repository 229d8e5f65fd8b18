// Package broker implements the Broker Gateway (§4.1): a resilient,
// Alpaca-shaped HTTP client with fractional-share fallback, PDT gating,
// and telemetry. Grounded on the teacher's tradernet client.go request/
// response shape, generalized to the raw Alpaca wire format (§6) and
// wrapped with a sony/gobreaker circuit breaker and an ulule/limiter
// outbound pacer.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
	"github.com/mazotrader/orchestrator/internal/telemetry"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Config configures a Client.
type Config struct {
	APIKeyID       string
	APISecretKey   string
	TradingBaseURL string // e.g. https://paper-api.alpaca.markets/v2
	DataBaseURL    string // e.g. https://data.alpaca.markets/v2
	AllowFractional bool
	HTTPTimeout    time.Duration
}

// Client is the Broker Gateway. The wrapped *http.Client is the one
// shared mutable resource (§5), safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *limiter.Limiter
	monitor *telemetry.RateLimitMonitor
	log     zerolog.Logger

	assetMu    sync.RWMutex
	assetCache map[string]domain.AssetInfo
}

// New builds a Broker Gateway client.
func New(cfg Config, monitor *telemetry.RateLimitMonitor, log zerolog.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker_alpaca",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	// Proactive self-throttling ahead of the broker's own 429s: 180 req/min,
	// repurposed from ulule/limiter's inbound API rate limiting.
	rate := limiter.Rate{Period: time.Minute, Limit: 180}
	lim := limiter.New(memory.NewStore(), rate)

	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: timeout},
		breaker:    cb,
		limiter:    lim,
		monitor:    monitor,
		log:        log.With().Str("component", "broker").Logger(),
		assetCache: make(map[string]domain.AssetInfo),
	}
}

// do executes one HTTP request through the pacer and circuit breaker,
// records a CallEvent regardless of outcome, and classifies the error
// taxonomy (§4.1): RateLimited, BrokerError, Transport.
func (c *Client) do(ctx context.Context, callType, method, url string, body interface{}) ([]byte, http.Header, error) {
	if _, err := c.limiter.Get(ctx, "broker_alpaca"); err != nil {
		c.log.Warn().Err(err).Msg("outbound pacer unavailable, proceeding unthrottled")
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.rawDo(ctx, method, url, body)
	})
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		success := false
		var remaining *int
		var outErr error
		switch e := err.(type) {
		case *tradeerrors.RateLimited:
			outErr = e
			if e.RetryAfterSeconds >= 0 {
				r := e.RetryAfterSeconds
				remaining = &r
			}
		case *tradeerrors.BrokerError:
			outErr = e
		default:
			outErr = &tradeerrors.TransportError{Op: callType, Err: err}
		}
		if c.monitor != nil {
			c.monitor.RecordCall("broker_alpaca", callType, success, latency, remaining)
		}
		return nil, nil, outErr
	}

	if c.monitor != nil {
		c.monitor.RecordCall("broker_alpaca", callType, true, latency, nil)
	}
	resp := result.(*httpResult)
	return resp.body, resp.header, nil
}

type httpResult struct {
	body   []byte
	header http.Header
}

func (c *Client) rawDo(ctx context.Context, method, url string, body interface{}) (*httpResult, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKeyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.APISecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 0
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if v, err := strconv.Atoi(ra); err == nil {
				retryAfter = v
			}
		}
		return nil, &tradeerrors.RateLimited{RetryAfterSeconds: retryAfter}
	}

	if resp.StatusCode >= 400 {
		return nil, &tradeerrors.BrokerError{Status: resp.StatusCode, Message: string(respBody)}
	}

	return &httpResult{body: respBody, header: resp.Header}, nil
}

func (c *Client) tradingURL(path string) string {
	return c.cfg.TradingBaseURL + path
}

func (c *Client) dataURL(path string) string {
	return c.cfg.DataBaseURL + path
}

func decodeInto(body []byte, v interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
