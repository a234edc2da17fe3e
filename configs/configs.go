// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// Feed contains exchange stream settings for the tick ingestor.
	Feed FeedConfig

	// Store contains bounded retention settings for the in-memory logs.
	Store StoreConfig

	// Analytics contains the scheduler cadence and windowing settings.
	Analytics AnalyticsConfig

	// Alert contains alert persistence settings.
	Alert AlertConfig

	// ServerPort is the HTTP listen port.
	ServerPort string

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string
}

// FeedConfig holds exchange stream settings.
type FeedConfig struct {
	// URL is the combined-stream websocket endpoint.
	URL string

	// Symbols is the list of trading pairs to subscribe, lowercase
	// (comma-separated in env).
	Symbols []string
}

// StoreConfig holds retention caps for the bounded logs.
type StoreConfig struct {
	// TickCapacity is the max raw ticks retained per symbol.
	TickCapacity int

	// CandleCapacity is the max candles retained per (symbol, timeframe).
	CandleCapacity int

	// ResampleBatch is the max records one resample pass consumes per symbol.
	ResampleBatch int
}

// AnalyticsConfig holds scheduler settings.
type AnalyticsConfig struct {
	// Window is the candle count every snapshot is computed over.
	Window int

	// Interval is the recompute cadence.
	Interval time.Duration

	// TTL is the snapshot cache lifetime.
	TTL time.Duration
}

// AlertConfig holds alert engine settings.
type AlertConfig struct {
	// DBPath is the sqlite file for rules and triggers.
	DBPath string

	// Retention bounds rule lifetime and trigger history.
	Retention time.Duration
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		Feed: FeedConfig{
			URL:     getEnv("FEED_URL", "wss://stream.binance.com:9443/ws"),
			Symbols: getEnvList("SYMBOLS", "btcusdt,ethusdt,bnbusdt"),
		},
		Store: StoreConfig{
			TickCapacity:   getEnvInt("TICK_CAPACITY", 10000),
			CandleCapacity: getEnvInt("CANDLE_CAPACITY", 5000),
			ResampleBatch:  getEnvInt("RESAMPLE_BATCH", 1000),
		},
		Analytics: AnalyticsConfig{
			Window:   getEnvInt("ANALYTICS_WINDOW", 20),
			Interval: getEnvDuration("ANALYTICS_INTERVAL", 500*time.Millisecond),
			TTL:      getEnvDuration("ANALYTICS_TTL", 5*time.Minute),
		},
		Alert: AlertConfig{
			DBPath:    getEnv("ALERT_DB_PATH", "pulse_alerts.db"),
			Retention: getEnvDuration("ALERT_RETENTION", 7*24*time.Hour),
		},
		ServerPort: getEnv("SERVER_PORT", "8000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma-separated environment variable, trimming and
// lowercasing entries.
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
