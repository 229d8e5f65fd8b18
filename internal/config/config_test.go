package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
)

func clearBrokerEnv(t *testing.T) {
	for _, k := range []string{"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "STATE_DATABASE_URL", "LEDGER_DATABASE_URL", "SCHEDULER_TIMEZONE"} {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoadFailsWithoutBrokerCredentials(t *testing.T) {
	clearBrokerEnv(t)

	_, err := Load()
	require.Error(t, err)

	var cfgErr *tradeerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "APCA_API_KEY_ID", cfgErr.Field)
}

func TestLoadSucceedsWithRequiredFields(t *testing.T) {
	clearBrokerEnv(t)
	os.Setenv("APCA_API_KEY_ID", "key")
	os.Setenv("APCA_API_SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.True(t, cfg.AllowFractional)
	assert.Equal(t, 2000.0, cfg.SmallAccountThreshold)
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	cfg := &Config{
		BrokerAPIKeyID:     "key",
		BrokerAPISecretKey: "secret",
		StateDBPath:        "./state.db",
		LedgerDBPath:       "./ledger.db",
		Timezone:           "Not/AZone",
	}
	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *tradeerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "SCHEDULER_TIMEZONE", cfgErr.Field)
}
