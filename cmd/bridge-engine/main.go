package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/etherlinkx/bridge-engine/internal/adapters/hopline"
	"github.com/etherlinkx/bridge-engine/internal/adapters/relayx"
	"github.com/etherlinkx/bridge-engine/internal/adapters/stargrid"
	"github.com/etherlinkx/bridge-engine/internal/aggregator"
	"github.com/etherlinkx/bridge-engine/internal/api"
	"github.com/etherlinkx/bridge-engine/internal/chainclient"
	"github.com/etherlinkx/bridge-engine/internal/chains"
	"github.com/etherlinkx/bridge-engine/internal/config"
	"github.com/etherlinkx/bridge-engine/internal/consumer"
	"github.com/etherlinkx/bridge-engine/internal/engine"
	"github.com/etherlinkx/bridge-engine/internal/feed"
	"github.com/etherlinkx/bridge-engine/internal/lifecycle"
	"github.com/etherlinkx/bridge-engine/internal/metrics"
	"github.com/etherlinkx/bridge-engine/internal/provider"
	"github.com/etherlinkx/bridge-engine/internal/publisher"
	"github.com/etherlinkx/bridge-engine/internal/quotecache"
	"github.com/etherlinkx/bridge-engine/internal/rate"
	intsecrets "github.com/etherlinkx/bridge-engine/internal/secrets"
	"github.com/etherlinkx/bridge-engine/internal/store"
	"github.com/etherlinkx/bridge-engine/pkg/eventbus"
	"github.com/etherlinkx/bridge-engine/pkg/logger"
	pkgsecrets "github.com/etherlinkx/bridge-engine/pkg/secrets"
	"github.com/etherlinkx/bridge-engine/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [bridge-engine]...")
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	defer nc.Drain() //nolint:errcheck

	pub, err := publisher.New(nc, cfg.OutboundSubject, "BRIDGE_EVENTS")
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 5,
		Burst:             10,
	})

	// --- Provider credentials (AWS Secrets Manager with env fallback) ---
	relayxKey := cfg.RelayXAPIKey
	stargridKey := cfg.StargridAPIKey
	if cfg.AWSRegion != "" {
		if awsProvider, err := pkgsecrets.NewAWSProvider(cfg.AWSRegion); err != nil {
			logg.Warnw("AWS provider unavailable, using env credentials", "error", err)
		} else {
			cache := pkgsecrets.NewCache[intsecrets.ProviderCredentials](30 * time.Minute)
			resolver := intsecrets.NewResolver(logger.L(), cfg.Env, awsProvider, cache)

			// Only providers with a secret under {env}/bridge-engine/ get
			// resolved; the rest keep their env credentials.
			discovered, err := resolver.DiscoverProviders(ctx)
			if err != nil {
				logg.Warnw("secret discovery failed, using env credentials", "error", err)
			}
			for _, name := range discovered {
				creds, err := resolver.Resolve(ctx, name)
				if err != nil {
					logg.Warnw("credential resolve failed", "provider", name, "error", err)
					continue
				}
				switch name {
				case relayx.Name:
					relayxKey = creds.APIKey
				case stargrid.Name:
					stargridKey = creds.APIKey
				}
			}
		}
	}

	// --- Provider registry ---
	chainReg := chains.NewRegistry(cfg.SupportedChains)
	registry := provider.NewRegistry()
	registry.Register(relayx.New(logger.L(), rateMgr, cfg.RelayXBaseURL, relayxKey,
		chainReg, cfg.AdapterTimeout, cfg.QuoteTTL))
	registry.Register(hopline.New(logger.L(), rateMgr, cfg.HoplineBaseURL,
		chainReg, cfg.AdapterTimeout, cfg.QuoteTTL))
	registry.Register(stargrid.New(logger.L(), rateMgr, cfg.StargridBaseURL, stargridKey,
		chainReg, cfg.AdapterTimeout, cfg.QuoteTTL))

	// --- Aggregator with single-flight quote cache ---
	cache := quotecache.New(logger.L(), cfg.QuoteTTL, cfg.CacheSweepInterval)
	agg := aggregator.New(logger.L(), registry, cache, cfg.AggregateTimeout)

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.DatabaseURL,
		store.PGPoolConfig{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns},
		cfg.QuoteTTL, store.RetentionConfig{
			Window:        cfg.RetentionWindow,
			MaxPerAccount: cfg.MaxTxPerAccount,
			SweepInterval: cfg.StoreSweepInterval,
		}, logger.L())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	defer st.Close() //nolint:errcheck
	st.StartRetentionSweep(ctx)

	// --- On-chain access ---
	reader := chainclient.NewRPCReader(logger.L(), cfg.RPCEndpoints, cfg.StatusPollInterval)
	wallet := chainclient.NewRelayerClient(logger.L(), cfg.RelayerURL, cfg.RelayerAPIKey)

	// --- Delivery watcher: provider status feed, or balance polling ---
	var watcher lifecycle.DeliveryWatcher
	if cfg.FeedURL != "" {
		feedClient := feed.NewClient(cfg.FeedURL, logger.L())
		if err := feedClient.Connect(ctx); err != nil {
			logg.Fatalw("failed to connect to status feed", "error", err)
		}
		defer feedClient.Close() //nolint:errcheck
		watcher = feedClient
	} else {
		watcher = lifecycle.NewBalanceWatcher(logger.L(), reader, cfg.StatusPollInterval)
	}

	// --- Lifecycle tracker ---
	bus := eventbus.New()
	tracker := lifecycle.NewTracker(logger.L(), st, wallet, reader, watcher, bus, lifecycle.Config{
		ConfirmationTimeout: cfg.ConfirmationTimeout,
		Spenders:            cfg.Spenders,
	})

	// Fan transitions out to NATS and the Postgres history.
	bus.Subscribe(lifecycle.TransitionEvent{}, func(event interface{}) {
		ev, ok := event.(lifecycle.TransitionEvent)
		if !ok {
			return
		}
		if err := pub.PublishTransition(ctx, ev); err != nil {
			logg.Errorw("failed to publish transition", "tx_id", ev.Transaction.ID, "error", err)
		}
		if err := st.RecordTransitionEvent(ctx, ev.Transaction, string(ev.From), string(ev.To)); err != nil {
			logg.Errorw("failed to record transition", "tx_id", ev.Transaction.ID, "error", err)
		}
	})

	// --- Engine facade ---
	eng := engine.New(logger.L(), agg, st, tracker, reader, pub)

	// --- Inbound command consumer (optional) ---
	if cfg.AMQPURL != "" {
		cons, err := consumer.NewConsumer(cfg.AMQPURL, cfg.CommandQueue, eng, logger.L())
		if err != nil {
			logg.Fatalw("failed to init command consumer", "error", err)
		}
		if err := cons.Start(ctx); err != nil {
			logg.Fatalw("failed to start command consumer", "error", err)
		}
		defer cons.Close() //nolint:errcheck
	}

	// --- Metrics ---
	metrics.StartServer(fmt.Sprintf(":%d", cfg.MetricsPort))

	// --- HTTP API ---
	app := fiber.New()
	h := &api.Handler{
		Logger: logger.L(),
		Engine: eng,
	}
	api.RegisterRoutes(app, h)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber server failed", "error", err)
		}
	}()

	logg.Infow("bridge-engine started",
		"port", cfg.Port,
		"providers", registry.Len(),
		"env", cfg.Env)

	<-ctx.Done()
	logg.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Errorw("fiber shutdown failed", "error", err)
	}
}
