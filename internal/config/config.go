// Package config defines the top-level configuration for the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Brokers  []BrokerConfig `toml:"brokers"`
	Quotes   QuotesConfig   `toml:"quotes"`
	Position PositionConfig `toml:"position"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
}

// EngineConfig holds the trading thresholds read by every cycle. The json tags
// are the keys accepted by a database overlay.
type EngineConfig struct {
	MinSize                  float64  `toml:"min_size" json:"min_size"`
	MaxSize                  float64  `toml:"max_size" json:"max_size"`
	MinTargetProfit          float64  `toml:"min_target_profit" json:"min_target_profit"`
	MaxNetExposure           float64  `toml:"max_net_exposure" json:"max_net_exposure"`
	DemoMode                 bool     `toml:"demo_mode" json:"demo_mode"`
	SleepAfterSend           duration `toml:"sleep_after_send" json:"sleep_after_send"`
	MaxRetryCount            int      `toml:"max_retry_count" json:"max_retry_count"`
	OrderStatusCheckInterval duration `toml:"order_status_check_interval" json:"order_status_check_interval"`
	// AckOnFatal makes the process wait for an operator before exiting on a
	// fatal error.
	AckOnFatal  bool   `toml:"ack_on_fatal" json:"-"`
	OverlayName string `toml:"overlay_name" json:"-"`
}

// BrokerConfig describes one venue: how orders are booked there, its position
// limits, and how to reach it.
type BrokerConfig struct {
	Broker            string      `toml:"broker"`
	Enabled           bool        `toml:"enabled"`
	Adapter           string      `toml:"adapter"`
	CashMarginType    string      `toml:"cash_margin_type"`
	LeverageLevel     float64     `toml:"leverage_level"`
	MaxLongPosition   float64     `toml:"max_long_position"`
	MaxShortPosition  float64     `toml:"max_short_position"`
	CommissionPercent float64     `toml:"commission_percent"`
	BaseURL           string      `toml:"base_url"`
	WSURL             string      `toml:"ws_url"`
	APIKey            string      `toml:"api_key"`
	APISecret         string      `toml:"api_secret"`
	Timeout           duration    `toml:"timeout"`
	QuoteStaleAfter   duration    `toml:"quote_stale_after"`
	Paper             PaperConfig `toml:"paper"`
}

// PaperConfig configures the in-memory venue.
type PaperConfig struct {
	Quotes    []PaperQuote `toml:"quotes"`
	FillAfter int          `toml:"fill_after"`
	Position  float64      `toml:"position"`
}

// PaperQuote is a static price level served by the paper venue.
type PaperQuote struct {
	Side   string  `toml:"side"`
	Price  float64 `toml:"price"`
	Volume float64 `toml:"volume"`
}

// QuotesConfig controls the quote aggregator.
type QuotesConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	PriceMergeSize  float64  `toml:"price_merge_size"`
}

// PositionConfig controls the position service.
type PositionConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters for the engine
// overlay store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	CycleLock    bool   `toml:"cycle_lock"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig controls log level and optional rotated file output.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MinSize:                  0.01,
			MaxSize:                  0.1,
			MinTargetProfit:          100,
			MaxNetExposure:           0.1,
			DemoMode:                 true,
			SleepAfterSend:           duration{5 * time.Second},
			MaxRetryCount:            10,
			OrderStatusCheckInterval: duration{3 * time.Second},
			OverlayName:              "default",
		},
		Quotes: QuotesConfig{
			RefreshInterval: duration{3 * time.Second},
			PriceMergeSize:  1,
		},
		Position: PositionConfig{
			RefreshInterval: duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			CycleLock:    true,
			StreamMaxLen: 10000,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// validLogLevels enumerates the accepted values for LogConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validAdapters = map[string]bool{
	"paper":  true,
	"bridge": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log.level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	// Engine
	e := c.Engine
	if e.MinSize <= 0 {
		errs = append(errs, "engine: min_size must be > 0")
	}
	if e.MaxSize < e.MinSize {
		errs = append(errs, "engine: max_size must be >= min_size")
	}
	if e.MinTargetProfit < 0 {
		errs = append(errs, "engine: min_target_profit must be >= 0")
	}
	if e.MaxNetExposure <= 0 {
		errs = append(errs, "engine: max_net_exposure must be > 0")
	}
	if e.MaxRetryCount < 1 {
		errs = append(errs, "engine: max_retry_count must be >= 1")
	}
	if e.OrderStatusCheckInterval.Duration <= 0 {
		errs = append(errs, "engine: order_status_check_interval must be > 0")
	}
	if e.SleepAfterSend.Duration < 0 {
		errs = append(errs, "engine: sleep_after_send must be >= 0")
	}

	// Brokers
	seen := make(map[string]bool, len(c.Brokers))
	enabled := 0
	for i, b := range c.Brokers {
		label := b.Broker
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Sprintf("brokers[%d]: broker must not be empty", i))
		}
		if seen[b.Broker] {
			errs = append(errs, fmt.Sprintf("broker %s: duplicate broker id", label))
		}
		seen[b.Broker] = true
		if !b.Enabled {
			continue
		}
		enabled++
		if !validAdapters[b.Adapter] {
			errs = append(errs, fmt.Sprintf("broker %s: unknown adapter %q (valid: paper, bridge)", label, b.Adapter))
		}
		if _, ok := domain.ParseCashMarginType(b.CashMarginType); !ok {
			errs = append(errs, fmt.Sprintf("broker %s: unknown cash_margin_type %q", label, b.CashMarginType))
		}
		if b.LeverageLevel <= 0 {
			errs = append(errs, fmt.Sprintf("broker %s: leverage_level must be > 0", label))
		}
		if b.MaxLongPosition < 0 || b.MaxShortPosition < 0 {
			errs = append(errs, fmt.Sprintf("broker %s: position limits must be >= 0", label))
		}
		if b.CommissionPercent < 0 {
			errs = append(errs, fmt.Sprintf("broker %s: commission_percent must be >= 0", label))
		}
		if b.Adapter == "bridge" && b.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("broker %s: base_url is required for the bridge adapter", label))
		}
		for _, q := range b.Paper.Quotes {
			if q.Side != string(domain.QuoteSideAsk) && q.Side != string(domain.QuoteSideBid) {
				errs = append(errs, fmt.Sprintf("broker %s: paper quote side %q must be ask or bid", label, q.Side))
			}
		}
	}
	if enabled < 2 {
		errs = append(errs, "brokers: at least two enabled brokers are required")
	}

	// Quotes / position
	if c.Quotes.RefreshInterval.Duration <= 0 {
		errs = append(errs, "quotes: refresh_interval must be > 0")
	}
	if c.Quotes.PriceMergeSize < 0 {
		errs = append(errs, "quotes: price_merge_size must be >= 0")
	}
	if c.Position.RefreshInterval.Duration <= 0 {
		errs = append(errs, "position: refresh_interval must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Snapshot converts the engine-relevant parts of c into the read-only view
// handed to each cycle.
func (c *Config) Snapshot() domain.EngineConfig {
	brokers := make([]domain.BrokerConfig, 0, len(c.Brokers))
	for _, b := range c.Brokers {
		cmt, _ := domain.ParseCashMarginType(b.CashMarginType)
		brokers = append(brokers, domain.BrokerConfig{
			Broker:            domain.BrokerID(b.Broker),
			Enabled:           b.Enabled,
			CashMarginType:    cmt,
			LeverageLevel:     b.LeverageLevel,
			MaxLongPosition:   b.MaxLongPosition,
			MaxShortPosition:  b.MaxShortPosition,
			CommissionPercent: b.CommissionPercent,
		})
	}
	return domain.EngineConfig{
		MinSize:                  c.Engine.MinSize,
		MaxSize:                  c.Engine.MaxSize,
		MinTargetProfit:          c.Engine.MinTargetProfit,
		MaxNetExposure:           c.Engine.MaxNetExposure,
		DemoMode:                 c.Engine.DemoMode,
		SleepAfterSend:           c.Engine.SleepAfterSend.Duration,
		MaxRetryCount:            c.Engine.MaxRetryCount,
		OrderStatusCheckInterval: c.Engine.OrderStatusCheckInterval.Duration,
		PriceMergeSize:           c.Quotes.PriceMergeSize,
		Brokers:                  brokers,
	}
}
