package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const sampleTOML = `
[engine]
min_size = 0.01
max_size = 0.05
min_target_profit = 50
max_net_exposure = 0.2
demo_mode = false
sleep_after_send = "2s"
max_retry_count = 5
order_status_check_interval = "1s"

[[brokers]]
broker = "alpha"
enabled = true
adapter = "paper"
cash_margin_type = "cash"
leverage_level = 1
max_long_position = 0.3
max_short_position = 0.3
commission_percent = 0.1

[[brokers.paper.quotes]]
side = "ask"
price = 100
volume = 1

[[brokers]]
broker = "beta"
enabled = true
adapter = "bridge"
cash_margin_type = "net_out"
leverage_level = 4
max_long_position = 0.3
max_short_position = 0.3
base_url = "http://localhost:9100"
api_key = "k"
api_secret = "s"

[log]
level = "debug"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.Engine.SleepAfterSend.Duration)
	assert.Equal(t, 5, cfg.Engine.MaxRetryCount)
	require.Len(t, cfg.Brokers, 2)
	require.Len(t, cfg.Brokers[0].Paper.Quotes, 1)
	// Defaults survive for keys the file omits.
	assert.Equal(t, 3*time.Second, cfg.Quotes.RefreshInterval.Duration)

	snap := cfg.Snapshot()
	assert.Equal(t, 50.0, snap.MinTargetProfit)
	assert.Equal(t, time.Second, snap.OrderStatusCheckInterval)
	beta, ok := snap.Broker("beta")
	require.True(t, ok)
	assert.Equal(t, domain.CashMarginNetOut, beta.CashMarginType)
	assert.Equal(t, 4.0, beta.LeverageLevel)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CROSSARB_ENGINE_DEMO_MODE", "true")
	t.Setenv("CROSSARB_ENGINE_MAX_RETRY_COUNT", "7")
	t.Setenv("CROSSARB_BROKER_BETA_API_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	assert.True(t, cfg.Engine.DemoMode)
	assert.Equal(t, 7, cfg.Engine.MaxRetryCount)
	assert.Equal(t, "from-env", cfg.Brokers[1].APISecret)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.MaxRetryCount = 0
	cfg.Engine.MaxNetExposure = 0
	cfg.Brokers = []BrokerConfig{{Broker: "alpha", Enabled: true, Adapter: "fax", CashMarginType: "cash", LeverageLevel: 1}}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"max_retry_count",
		"max_net_exposure",
		"unknown adapter",
		"at least two enabled brokers",
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %s", want, msg)
	}
}

func TestApplyOverlay(t *testing.T) {
	cfg := Defaults()
	err := ApplyOverlay(&cfg, map[string]any{
		"min_target_profit": 250.0,
		"demo_mode":         false,
		"sleep_after_send":  "9s",
	})
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Engine.MinTargetProfit)
	assert.False(t, cfg.Engine.DemoMode)
	assert.Equal(t, 9*time.Second, cfg.Engine.SleepAfterSend.Duration)

	err = ApplyOverlay(&cfg, map[string]any{"min_target_proft": 1.0})
	assert.Error(t, err)
	assert.Equal(t, 250.0, cfg.Engine.MinTargetProfit)
}

type stubOverlay struct {
	ov  domain.EngineOverlay
	err error
}

func (s stubOverlay) Get(context.Context, string) (domain.EngineOverlay, error) {
	return s.ov, s.err
}

func TestStoreReload(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	cfg, err := Load(path)
	require.NoError(t, err)

	store := NewStore(path, cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	assert.Equal(t, 50.0, store.Config().MinTargetProfit)

	updated := strings.Replace(sampleTOML, "min_target_profit = 50", "min_target_profit = 75", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, store.Reload(context.Background()))
	assert.Equal(t, 75.0, store.Config().MinTargetProfit)

	store.SetOverlay(stubOverlay{ov: domain.EngineOverlay{
		Name:    "default",
		Enabled: true,
		Params:  map[string]any{"min_target_profit": 120.0},
	}})
	require.NoError(t, store.Reload(context.Background()))
	assert.Equal(t, 120.0, store.Config().MinTargetProfit)

	// A broken file keeps the previous snapshot.
	require.NoError(t, os.WriteFile(path, []byte("[engine\n"), 0o600))
	assert.Error(t, store.Reload(context.Background()))
	assert.Equal(t, 120.0, store.Config().MinTargetProfit)
}

func TestStoreOverlayNotFound(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	cfg, err := Load(path)
	require.NoError(t, err)

	store := NewStore(path, cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	store.SetOverlay(stubOverlay{err: domain.ErrNotFound})
	require.NoError(t, store.ApplyOverlay(context.Background()))
	assert.Equal(t, 50.0, store.Config().MinTargetProfit)
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	cfg.Redis.Password = "hunter2"

	red := RedactedConfig(cfg)
	assert.Equal(t, "***", red.Brokers[1].APISecret)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "s", cfg.Brokers[1].APISecret)
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	snap := cfg.Snapshot()
	assert.Equal(t, []domain.BrokerID{"alpha", "beta"}, snap.Enabled())
	assert.Len(t, cfg.Brokers[0].Paper.Quotes, 2)
	assert.Equal(t, 3001000.0, cfg.Brokers[0].Paper.Quotes[0].Price)
}

func TestStoreValidateOverlay(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(path, cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	assert.NoError(t, store.ValidateOverlay(map[string]any{"min_target_profit": 80.0}))
	assert.NoError(t, store.ValidateOverlay(nil))

	err = store.ValidateOverlay(map[string]any{"max_retry_count": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retry_count")

	assert.Error(t, store.ValidateOverlay(map[string]any{"max_size": 0.001}))
	assert.Error(t, store.ValidateOverlay(map[string]any{"no_such_key": 1}))

	// Nothing was swapped in.
	assert.Equal(t, 50.0, store.Config().MinTargetProfit)
	assert.Equal(t, 5, store.Config().MaxRetryCount)
	assert.Equal(t, 0.05, store.Current().Engine.MaxSize)
}
