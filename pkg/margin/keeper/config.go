// Package keeper implements the off-chain maintenance loops spec.md §6
// describes around the core: periodically calling update_funding,
// update_bank_index (interest accrual), perp_consume_events, and
// perp_settle_pnl against every market/account the group holds, each on
// its own configurable interval.
package keeper

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config controls the four maintenance loops' tick intervals plus the
// watchdog timeout that aborts the process if the engine stops making
// progress.
type Config struct {
	UpdateFundingInterval   time.Duration
	UpdateBanksInterval     time.Duration
	ConsumeEventsInterval   time.Duration
	SettleInterval          time.Duration

	// CheckForChangesInterval controls how often the watchdog samples
	// CurrentSlot; if it hasn't advanced for FatalConnectionTimeout, the
	// keeper logs a fatal and exits 1.
	CheckForChangesInterval time.Duration
	FatalConnectionTimeout  time.Duration

	ConsumeEventsLimit int
}

// Default returns the keeper's built-in tick intervals.
func Default() Config {
	return Config{
		UpdateFundingInterval:   1 * time.Second,
		UpdateBanksInterval:     5 * time.Second,
		ConsumeEventsInterval:   500 * time.Millisecond,
		SettleInterval:          10 * time.Second,
		CheckForChangesInterval: 30 * time.Second,
		FatalConnectionTimeout:  2 * time.Minute,
		ConsumeEventsLimit:      8,
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("KEEPER_INTERVAL_UPDATE_FUNDING_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.UpdateFundingInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KEEPER_INTERVAL_UPDATE_BANKS_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.UpdateBanksInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KEEPER_INTERVAL_CONSUME_EVENTS_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.ConsumeEventsInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KEEPER_INTERVAL_SETTLE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.SettleInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KEEPER_INTERVAL_CHECK_FOR_CHANGES_AND_ABORT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.CheckForChangesInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KEEPER_FATAL_CONNECTION_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.FatalConnectionTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("KEEPER_CONSUME_EVENTS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConsumeEventsLimit = n
		}
	}

	return cfg
}
