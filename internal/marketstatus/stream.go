// Package marketstatus keeps a live view of exchange open/closed state
// over a streaming connection, falling back to a REST poll when the
// stream is down or stale. Grounded on aristath-sentinel's
// MarketStatusWebSocket (internal/clients/tradernet/websocket_client.go):
// same reconnect-with-backoff and cache-staleness shape, repurposed from
// Tradernet's markets channel onto Alpaca's market-data stream, where
// message flow itself is the liveness signal.
package marketstatus

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	dialTimeout        = 30 * time.Second
	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
	staleThreshold     = 5 * time.Minute
)

// Checker is the REST fallback consulted when the stream is down or
// stale — satisfied by *broker.Client.
type Checker interface {
	IsOpen(ctx context.Context) (bool, error)
}

// Stream maintains a websocket connection whose message flow doubles as
// a market-open liveness signal, degrading to Checker on disconnect.
type Stream struct {
	url      string
	fallback Checker
	log      zerolog.Logger

	mu          sync.RWMutex
	conn        *websocket.Conn
	connected   bool
	lastMessage time.Time

	stopCh  chan struct{}
	stopped bool
}

// New builds a Stream against url (e.g. Alpaca's market-data stream),
// falling back to fallback when disconnected or stale.
func New(url string, fallback Checker, log zerolog.Logger) *Stream {
	return &Stream{
		url:      url,
		fallback: fallback,
		log:      log.With().Str("component", "marketstatus").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start connects in the background and keeps reconnecting until Stop.
func (s *Stream) Start() {
	go s.reconnectLoop()
}

// Stop closes the connection and halts reconnection attempts.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	conn := s.conn
	s.mu.Unlock()

	close(s.stopCh)
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
}

// IsOpen satisfies telemetry.MarketCalendarChecker: true when the stream
// is connected and has seen a message within staleThreshold, else it
// defers to the REST fallback.
func (s *Stream) IsOpen(ctx context.Context) (bool, error) {
	s.mu.RLock()
	connected := s.connected
	stale := s.lastMessage.IsZero() || time.Since(s.lastMessage) > staleThreshold
	s.mu.RUnlock()

	if connected && !stale {
		return true, nil
	}
	return s.fallback.IsOpen(ctx)
}

func (s *Stream) reconnectLoop() {
	attempt := 0
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			attempt++
			delay := backoff(attempt)
			s.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("market status stream dial failed")
			select {
			case <-time.After(delay):
				continue
			case <-s.stopCh:
				return
			}
		}
		attempt = 0

		s.readUntilClosed()

		select {
		case <-s.stopCh:
			return
		default:
		}
	}
}

func (s *Stream) connect() error {
	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("marketstatus: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Stream) readUntilClosed() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_, _, err := s.conn.Read(context.Background())
		if err != nil {
			s.log.Debug().Err(err).Msg("market status stream read ended")
			return
		}
		s.mu.Lock()
		s.lastMessage = time.Now()
		s.mu.Unlock()
	}
}

func backoff(attempt int) time.Duration {
	d := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(maxReconnectDelay) {
		d = float64(maxReconnectDelay)
	}
	return time.Duration(d)
}
