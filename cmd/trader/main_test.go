package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
)

func TestExitCodeForMapsTaggedErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"config", &tradeerrors.ConfigError{Field: "APCA_API_KEY_ID", Msg: "required"}, exitMisconfigured},
		{"conflict", &tradeerrors.Conflict{}, exitConflict},
		{"broker", &tradeerrors.BrokerError{Status: 422, Message: "rejected"}, exitBrokerOrTransport},
		{"transport", &tradeerrors.TransportError{Op: "GetBars", Err: errors.New("dial timeout")}, exitBrokerOrTransport},
		{"rate limited", &tradeerrors.RateLimited{RetryAfterSeconds: 5}, exitBrokerOrTransport},
		{"precondition failed", &tradeerrors.PreconditionFailed{Reason: "pdt gate"}, exitOther},
		{"plain", errors.New("boom"), exitOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}

func TestExitCodeForDoesNotMatchOnMessageText(t *testing.T) {
	lookalike := errors.New((&tradeerrors.ConfigError{Field: "X", Msg: "y"}).Error())
	assert.Equal(t, exitOther, exitCodeFor(lookalike))
}
