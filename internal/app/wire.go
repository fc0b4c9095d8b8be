package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alanyoungcy/crossarb/internal/analyzer"
	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/broker"
	"github.com/alanyoungcy/crossarb/internal/broker/bridge"
	"github.com/alanyoungcy/crossarb/internal/broker/paper"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/position"
	"github.com/alanyoungcy/crossarb/internal/quote"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/store/postgres"
)

// Dependencies bundles everything Run starts. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	Config   *config.Store
	Router   *broker.Router
	Streams  []*bridge.QuoteStream
	Registry *prometheus.Registry

	// Optional backing services; nil when disabled.
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	Overlays    domain.EngineOverlayStore

	Aggregator *quote.Aggregator
	Positions  *position.Service
	Engine     *arbitrage.Arbitrager
	Notifier   *notify.Notifier
	Server     *server.Server
}

// Wire constructs every concrete dependency from cfg, which must already be
// validated. path is the config file re-read on reload.
func Wire(ctx context.Context, path string, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Config:   config.NewStore(path, cfg, logger),
		Router:   broker.NewRouter(logger),
		Registry: prometheus.NewRegistry(),
	}
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pingers := map[string]handler.Pinger{}

	// --- Brokers ---
	for _, bc := range cfg.Brokers {
		if !bc.Enabled {
			continue
		}
		adapter, stream := newAdapter(bc, logger)
		deps.Router.Register(adapter)
		if stream != nil {
			deps.Streams = append(deps.Streams, stream)
		}
	}

	// --- PostgreSQL (engine overlays) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		pingers["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		overlays := postgres.NewEngineOverlayStore(pgClient.Pool())
		deps.Overlays = overlays
		deps.Config.SetOverlay(overlays)
		if err := deps.Config.ApplyOverlay(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: engine overlay: %w", err)
		}
	}

	// --- Redis (cycle lock and cycle events) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		pingers["redis"] = redisClient

		if cfg.Redis.CycleLock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Engine ---
	adapters := deps.Router.Adapters()
	quoteSources := make([]quote.Source, 0, len(adapters))
	positionSources := make([]position.Source, 0, len(adapters))
	for _, a := range adapters {
		quoteSources = append(quoteSources, a)
		positionSources = append(positionSources, a)
	}
	deps.Aggregator = quote.NewAggregator(deps.Config, quoteSources, cfg.Quotes.RefreshInterval.Duration, logger)
	deps.Positions = position.NewService(deps.Config, positionSources, cfg.Position.RefreshInterval.Duration, logger)

	engineCfg := arbitrage.Config{
		Configs:   deps.Config,
		Quotes:    deps.Aggregator,
		Positions: deps.Positions,
		Router:    deps.Router,
		Analyzer:  analyzer.NewSpread(deps.Positions, logger),
		Locks:     deps.LockManager,
		Bus:       deps.SignalBus,
		Metrics:   arbitrage.NewMetrics(deps.Registry),
		OnCycle:   cycleNotifier(deps.Notifier),
		Logger:    logger,
	}
	deps.Engine = arbitrage.New(engineCfg)

	// --- HTTP server ---
	if cfg.Server.Enabled {
		handlers := server.Handlers{
			Health: handler.NewHealthHandler(pingers, logger),
			Status: handler.NewStatusHandler(deps.Config, deps.Positions, deps.Engine, deps.Aggregator),
		}
		if deps.Overlays != nil {
			handlers.Overlays = handler.NewOverlayHandler(deps.Overlays, deps.Config, logger)
		}
		if deps.SignalBus != nil {
			handlers.Cycles = handler.NewCycleHandler(deps.SignalBus, arbitrage.CyclesStream, logger)
		}
		deps.Server = server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
		}, handlers, deps.Registry, logger)
	}

	return deps, cleanup, nil
}

// newAdapter builds the venue integration named by bc.Adapter. A bridge with
// a ws_url also returns the quote stream that feeds it.
func newAdapter(bc config.BrokerConfig, logger *slog.Logger) (broker.Adapter, *bridge.QuoteStream) {
	id := domain.BrokerID(bc.Broker)
	if bc.Adapter == "paper" {
		quotes := make([]domain.Quote, 0, len(bc.Paper.Quotes))
		for _, q := range bc.Paper.Quotes {
			quotes = append(quotes, domain.Quote{
				Broker: id,
				Side:   domain.QuoteSide(q.Side),
				Price:  q.Price,
				Volume: q.Volume,
			})
		}
		return paper.New(paper.Config{
			Broker:    id,
			Quotes:    quotes,
			Position:  bc.Paper.Position,
			FillAfter: bc.Paper.FillAfter,
		}, logger), nil
	}

	client := bridge.New(bridge.Config{
		Broker:          id,
		BaseURL:         bc.BaseURL,
		APIKey:          bc.APIKey,
		APISecret:       bc.APISecret,
		Timeout:         bc.Timeout.Duration,
		QuoteStaleAfter: bc.QuoteStaleAfter.Duration,
	}, logger)
	if bc.WSURL == "" {
		return client, nil
	}
	stream := bridge.NewQuoteStream(bc.WSURL, id, logger)
	client.AttachStream(stream)
	return client, stream
}

// cycleNotifier forwards finished cycles to the notifier without holding up
// the cycle's cooldown.
func cycleNotifier(n *notify.Notifier) func(domain.CycleRecord) {
	return func(rec domain.CycleRecord) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = n.CycleCompleted(ctx, rec)
		}()
	}
}
