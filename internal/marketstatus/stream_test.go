package marketstatus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	open bool
	err  error
}

func (f *fakeChecker) IsOpen(ctx context.Context) (bool, error) {
	return f.open, f.err
}

func TestIsOpenFallsBackWhenDisconnected(t *testing.T) {
	fallback := &fakeChecker{open: true}
	s := New("wss://example.invalid", fallback, zerolog.Nop())

	open, err := s.IsOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}

func TestIsOpenFallsBackWhenStale(t *testing.T) {
	fallback := &fakeChecker{open: false}
	s := New("wss://example.invalid", fallback, zerolog.Nop())
	s.connected = true
	s.lastMessage = time.Now().Add(-10 * time.Minute)

	open, err := s.IsOpen(context.Background())
	require.NoError(t, err)
	assert.False(t, open)
}

func TestIsOpenTrustsFreshStream(t *testing.T) {
	fallback := &fakeChecker{open: false, err: errors.New("should not be called")}
	s := New("wss://example.invalid", fallback, zerolog.Nop())
	s.connected = true
	s.lastMessage = time.Now()

	open, err := s.IsOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}

func TestBackoffCapsAtMax(t *testing.T) {
	assert.Equal(t, maxReconnectDelay, backoff(20))
}
