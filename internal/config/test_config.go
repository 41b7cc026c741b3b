package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database = DatabaseConfig{
		Path:    ":memory:",
		Timeout: 1 * time.Second,
	}
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Backend.UserAgent = "bazaar-test/1.0"
	cfg.Feed = FeedConfig{
		PageSize:     3,
		Debounce:     20 * time.Millisecond,
		FetchTimeout: 2 * time.Second,
	}
	cfg.Import = ImportConfig{
		HTTPTimeout: 5 * time.Second,
		UserAgent:   "bazaar-test/1.0",
	}
	return cfg
}
