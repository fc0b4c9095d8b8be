//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Run with: CROSSARB_TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/store/postgres/
func newIntegrationClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("CROSSARB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CROSSARB_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.RunMigrations(ctx))
	// A second run is a no-op.
	require.NoError(t, c.RunMigrations(ctx))
	return c
}

func TestEngineOverlayStore(t *testing.T) {
	c := newIntegrationClient(t)
	store := NewEngineOverlayStore(c.Pool())
	ctx := context.Background()

	prefix := "it-" + uuid.NewString()[:8] + "-"
	a, b := prefix+"a", prefix+"b"
	t.Cleanup(func() {
		_, _ = c.Pool().Exec(context.Background(), "DELETE FROM engine_overlays WHERE name = ANY($1)", []string{a, b})
	})

	_, err := store.Get(ctx, a)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Upsert(ctx, domain.EngineOverlay{
		Name:    a,
		Params:  map[string]any{"min_target_profit": 250.0, "demo_mode": false},
		Enabled: true,
	}))
	got, err := store.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a, got.Name)
	assert.True(t, got.Enabled)
	assert.Equal(t, 250.0, got.Params["min_target_profit"])
	assert.Equal(t, false, got.Params["demo_mode"])
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, store.Upsert(ctx, domain.EngineOverlay{
		Name:    a,
		Params:  map[string]any{"max_retry_count": 4.0},
		Enabled: false,
	}))
	got, err = store.Get(ctx, a)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, map[string]any{"max_retry_count": 4.0}, got.Params)

	require.NoError(t, store.Upsert(ctx, domain.EngineOverlay{Name: b, Enabled: true}))

	list, err := store.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, o := range list {
		if o.Name == a || o.Name == b {
			names = append(names, o.Name)
		}
	}
	assert.Equal(t, []string{a, b}, names)
}
