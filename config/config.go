package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all daemon/consumer configuration loaded from
// environment variables. Secrets stay in the environment; nothing here
// is ever persisted.
type Config struct {
	// Markets to subscribe, comma-separated tickers.
	Tickers string

	// Feed source. Empty means the built-in random-walk simulator.
	FeedURL string

	// Candle timeframes (comma-separated seconds, e.g. "30,60,180,300").
	EnabledTFs string

	// Infrastructure
	RedisAddr     string // "" disables the Redis mirror
	RedisPassword string
	SQLitePath    string // "" disables the candle store
	MetricsAddr   string
	HubAddr       string // consumer websocket fan-out, "" disables

	// Alerting for crossed books / cycle rotations. All optional; a
	// Telegram backend needs both token and chat id.
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Trading (consumer side). The mnemonic is read from
	// DYDX_TESTNET_MNEMONIC and never written anywhere.
	SessionMnemonic string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Tickers:    getEnv("LADDER_TICKERS", "ETH-USD,BTC-USD,SOL-USD"),
		FeedURL:    getEnv("LADDER_FEED_URL", ""),
		EnabledTFs: getEnv("LADDER_TFS", "30,60,180,300"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		HubAddr:       getEnv("LADDER_HUB_ADDR", ""),

		WebhookURL:       getEnv("LADDER_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		SessionMnemonic: os.Getenv("DYDX_TESTNET_MNEMONIC"),
	}
}

// ParseTickers splits the ticker list, dropping empty entries.
func (c *Config) ParseTickers() []string {
	parts := strings.Split(c.Tickers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseTFs parses EnabledTFs into timeframe seconds, skipping invalid
// entries.
func (c *Config) ParseTFs() []int64 {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
