// Package config loads the orchestrator's environment-variable
// configuration, following the teacher's getEnv/getEnvAsInt/getEnvAsBool
// shape (internal/config/config.go), extended with getEnvAsFloat and
// getEnvAsDuration for the domain's broker/risk/scheduler tunables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
)

// Config holds every environment-sourced tunable (§REDESIGN/§ambient stack:
// "names fixed, values free").
type Config struct {
	// Server (ambient: localhost-bound healthz/metrics only, §AMBIENT STACK)
	Port    int
	DevMode bool

	// Persistence
	StateDBPath  string // durable store: watchlist, scheduler heartbeat, agent performance
	LedgerDBPath string // trade history, daily snapshots, decision contexts (the FIFO book itself is in memory)
	CacheURL     string // optional cache backend (interface-only per Non-goals)

	// Broker (Alpaca-shaped, §4.1)
	BrokerAPIKeyID     string
	BrokerAPISecretKey string
	BrokerTradingURL   string
	BrokerDataURL      string
	BrokerStreamURL    string

	// Timezone is validated at load only; the scheduler is pinned to
	// America/New_York and does not read this value (§4.4).
	Timezone string

	// Scheduler
	SchedulerStaleThresholdMinutes int

	// Price Provider / Strategy toggles
	UseIntradayData bool

	// Risk & Sizing
	AllowFractional                bool
	SmallAccountThreshold          float64
	SmallAccountMaxSignals         int
	SmallAccountMinConfidence      float64
	SmallAccountMaxTickerPrice     float64
	SmallAccountPositionCap        int
	ExplicitTargetNotionalPerTrade float64
	MinBuyingPowerPct              float64
	PerTickerCapPct                float64
	ATRStopMultiplier               float64
	ATRTakeProfitMultiplier         float64
	TradeCooldownMinutes            int

	// Logging
	LogLevel string
}

// Load reads configuration from the environment (and .env, if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnvAsInt("PORT", 8080),
		DevMode: getEnvAsBool("DEV_MODE", false),

		StateDBPath:  getEnv("STATE_DATABASE_URL", "./data/state.db"),
		LedgerDBPath: getEnv("LEDGER_DATABASE_URL", "./data/ledger.db"),
		CacheURL:     getEnv("CACHE_URL", ""),

		BrokerAPIKeyID:     getEnv("APCA_API_KEY_ID", ""),
		BrokerAPISecretKey: getEnv("APCA_API_SECRET_KEY", ""),
		BrokerTradingURL:   getEnv("APCA_TRADING_BASE_URL", "https://paper-api.alpaca.markets/v2"),
		BrokerDataURL:      getEnv("APCA_DATA_BASE_URL", "https://data.alpaca.markets/v2"),
		BrokerStreamURL:    getEnv("APCA_STREAM_URL", "wss://stream.data.alpaca.markets/v2/iex"),

		Timezone: getEnv("SCHEDULER_TIMEZONE", "America/New_York"),

		SchedulerStaleThresholdMinutes: getEnvAsInt("SCHEDULER_STALE_THRESHOLD_MINUTES", 10),

		UseIntradayData: getEnvAsBool("USE_INTRADAY_DATA", false),

		AllowFractional:                 getEnvAsBool("ALLOW_FRACTIONAL", true),
		SmallAccountThreshold:           getEnvAsFloat("SMALL_ACCOUNT_THRESHOLD", 2000),
		SmallAccountMaxSignals:          getEnvAsInt("SMALL_ACCOUNT_MAX_SIGNALS", 2),
		SmallAccountMinConfidence:       getEnvAsFloat("SMALL_ACCOUNT_MIN_CONFIDENCE", 70),
		SmallAccountMaxTickerPrice:      getEnvAsFloat("SMALL_ACCOUNT_MAX_TICKER_PRICE", 50),
		SmallAccountPositionCap:         getEnvAsInt("SMALL_ACCOUNT_POSITION_CAP", 3),
		ExplicitTargetNotionalPerTrade:  getEnvAsFloat("TARGET_NOTIONAL_PER_TRADE", 0),
		MinBuyingPowerPct:               getEnvAsFloat("MIN_BUYING_POWER_PCT", 0.1),
		PerTickerCapPct:                 getEnvAsFloat("PER_TICKER_CAP_PCT", 0.25),
		ATRStopMultiplier:               getEnvAsFloat("ATR_STOP_MULTIPLIER", 2.0),
		ATRTakeProfitMultiplier:         getEnvAsFloat("ATR_TAKE_PROFIT_MULTIPLIER", 3.0),
		TradeCooldownMinutes:            getEnvAsInt("TRADE_COOLDOWN_MINUTES", 30),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required credential/path is present,
// returning a *tradeerrors.ConfigError (fatal at startup, exit code 2 per
// the CLI contract in §6) on the first missing field.
func (c *Config) Validate() error {
	if c.BrokerAPIKeyID == "" {
		return &tradeerrors.ConfigError{Field: "APCA_API_KEY_ID", Msg: "broker API key is required"}
	}
	if c.BrokerAPISecretKey == "" {
		return &tradeerrors.ConfigError{Field: "APCA_API_SECRET_KEY", Msg: "broker API secret is required"}
	}
	if c.StateDBPath == "" {
		return &tradeerrors.ConfigError{Field: "STATE_DATABASE_URL", Msg: "state database path is required"}
	}
	if c.LedgerDBPath == "" {
		return &tradeerrors.ConfigError{Field: "LEDGER_DATABASE_URL", Msg: "ledger database path is required"}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &tradeerrors.ConfigError{Field: "SCHEDULER_TIMEZONE", Msg: "unrecognized timezone: " + c.Timezone}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
