package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// ApplyOverlay merges a JSON object of [engine] keys into cfg. Unknown keys
// are rejected so a typo in the database does not silently do nothing.
func ApplyOverlay(cfg *Config, params map[string]any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("config: marshal overlay: %w", err)
	}
	engine := cfg.Engine
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&engine); err != nil {
		return fmt.Errorf("config: decode overlay: %w", err)
	}
	cfg.Engine = engine
	return nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.MinSize, "CROSSARB_ENGINE_MIN_SIZE")
	setFloat64(&cfg.Engine.MaxSize, "CROSSARB_ENGINE_MAX_SIZE")
	setFloat64(&cfg.Engine.MinTargetProfit, "CROSSARB_ENGINE_MIN_TARGET_PROFIT")
	setFloat64(&cfg.Engine.MaxNetExposure, "CROSSARB_ENGINE_MAX_NET_EXPOSURE")
	setBool(&cfg.Engine.DemoMode, "CROSSARB_ENGINE_DEMO_MODE")
	setDuration(&cfg.Engine.SleepAfterSend, "CROSSARB_ENGINE_SLEEP_AFTER_SEND")
	setInt(&cfg.Engine.MaxRetryCount, "CROSSARB_ENGINE_MAX_RETRY_COUNT")
	setDuration(&cfg.Engine.OrderStatusCheckInterval, "CROSSARB_ENGINE_ORDER_STATUS_CHECK_INTERVAL")
	setBool(&cfg.Engine.AckOnFatal, "CROSSARB_ENGINE_ACK_ON_FATAL")
	setStr(&cfg.Engine.OverlayName, "CROSSARB_ENGINE_OVERLAY_NAME")

	// ── Brokers ── secrets are keyed by broker id, e.g. CROSSARB_BROKER_COINCHECK_API_KEY.
	for i := range cfg.Brokers {
		prefix := "CROSSARB_BROKER_" + envKey(cfg.Brokers[i].Broker) + "_"
		setStr(&cfg.Brokers[i].APIKey, prefix+"API_KEY")
		setStr(&cfg.Brokers[i].APISecret, prefix+"API_SECRET")
		setStr(&cfg.Brokers[i].BaseURL, prefix+"BASE_URL")
		setStr(&cfg.Brokers[i].WSURL, prefix+"WS_URL")
		setBool(&cfg.Brokers[i].Enabled, prefix+"ENABLED")
	}

	// ── Quotes / Position ──
	setDuration(&cfg.Quotes.RefreshInterval, "CROSSARB_QUOTES_REFRESH_INTERVAL")
	setFloat64(&cfg.Quotes.PriceMergeSize, "CROSSARB_QUOTES_PRICE_MERGE_SIZE")
	setDuration(&cfg.Position.RefreshInterval, "CROSSARB_POSITION_REFRESH_INTERVAL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CROSSARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.CycleLock, "CROSSARB_REDIS_CYCLE_LOCK")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CROSSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CROSSARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "CROSSARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "CROSSARB_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.Level, "CROSSARB_LOG_LEVEL")
	setStr(&cfg.Log.File, "CROSSARB_LOG_FILE")
}

// envKey turns a broker id into an environment variable fragment.
func envKey(id string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id))
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
