package am

import (
	"encoding/hex"

	"github.com/teranos/autonomy/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", DriverSQLite, DriverMemory:
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}

	// Server port: 0 means default, negative or above 65535 is invalid
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return errors.Newf("server.rate_limit_per_minute must be >= 0, got %d", c.Server.RateLimitPerMinute)
	}
	if c.Server.RateLimitBurst < 0 {
		return errors.Newf("server.rate_limit_burst must be >= 0, got %d", c.Server.RateLimitBurst)
	}

	// Zero delay completes jobs on the next timer fire, negative is invalid
	if c.Pulse.CompletionDelayMs < 0 {
		return errors.Newf("pulse.completion_delay_ms must be >= 0, got %d", c.Pulse.CompletionDelayMs)
	}
	if c.Pulse.MaxRunning < 0 {
		return errors.Newf("pulse.max_running must be >= 0, got %d", c.Pulse.MaxRunning)
	}
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.Newf("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.HistoryDefaultLimit < 0 || c.Pulse.HistoryMaxLimit < 0 {
		return errors.New("pulse.history_default_limit and pulse.history_max_limit must be >= 0")
	}
	if c.Pulse.HistoryMaxLimit > 0 && c.Pulse.HistoryDefaultLimit > c.Pulse.HistoryMaxLimit {
		return errors.Newf("pulse.history_default_limit (%d) exceeds pulse.history_max_limit (%d)",
			c.Pulse.HistoryDefaultLimit, c.Pulse.HistoryMaxLimit)
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.WithHint(
			errors.New("auth.enabled requires at least one auth.api_keys entry"),
			"add [[auth.api_keys]] with id, key_sha256 and permissions")
	}
	seen := make(map[string]bool, len(c.Auth.APIKeys))
	for i, key := range c.Auth.APIKeys {
		if key.ID == "" {
			return errors.Newf("auth.api_keys[%d].id cannot be empty", i)
		}
		if seen[key.ID] {
			return errors.Newf("auth.api_keys[%d].id %q is duplicated", i, key.ID)
		}
		seen[key.ID] = true

		if raw, err := hex.DecodeString(key.KeySHA256); err != nil || len(raw) != 32 {
			return errors.Newf("auth.api_keys[%d].key_sha256 must be a 64-character hex SHA-256 digest", i)
		}
		if len(key.Permissions) == 0 {
			return errors.Newf("auth.api_keys[%d] (%s) has no permissions", i, key.ID)
		}
	}

	return nil
}
