package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/catalog"
	"github.com/avvvet/naina-chat/internal/config"
	"github.com/avvvet/naina-chat/internal/handlers"
	"github.com/avvvet/naina-chat/internal/llm"
	"github.com/avvvet/naina-chat/internal/memory"
	"github.com/avvvet/naina-chat/internal/metrics"
	"github.com/avvvet/naina-chat/internal/prompts"
	"github.com/avvvet/naina-chat/internal/transport"
)

func main() {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("❌ server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("🚀 starting Naina chat service",
		zap.String("environment", cfg.Environment),
		zap.String("primary", cfg.LLM.Primary),
		zap.String("fallback", cfg.LLM.Fallback),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Session store
	var store memory.Store
	var storeCheck transport.HealthCheck
	if cfg.RedisURL != "" {
		logger.Info("🔌 connecting to Redis...")
		redisStore, err := memory.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return err
		}
		store = redisStore
		storeCheck = redisStore.Ping
		logger.Info("✅ Redis connected")
	} else {
		logger.Warn("REDIS_URL not set, sessions are kept in memory")
		store = memory.NewInMemoryStore()
	}
	memoryManager := memory.NewManager(store, logger)
	defer memoryManager.Close()

	// Catalog
	products, err := catalog.NewSQLiteStore(cfg.CatalogDSN)
	if err != nil {
		return err
	}
	defer products.Close()
	if n, err := products.Count(ctx); err == nil {
		logger.Info("🛍️ catalog opened", zap.Int("products", n))
	}

	digest := catalog.NewDigestCache(products, cfg.CatalogDigestTTL)
	engine := catalog.NewEngine(products, logger, m)
	builder := prompts.NewBuilder(digest, logger)

	// Language model gateway
	primary, err := newProvider(ctx, cfg.LLM.Primary, cfg.LLM)
	if err != nil {
		return err
	}
	var fallback llm.Provider
	if name := cfg.LLM.Fallback; name != "" && name != cfg.LLM.Primary {
		if key, _ := cfg.LLM.APIKey(name); key == "" {
			logger.Warn("fallback provider has no API key, failover disabled", zap.String("provider", name))
		} else if fallback, err = newProvider(ctx, name, cfg.LLM); err != nil {
			return err
		}
	}

	gatewayCfg := llm.DefaultGatewayConfig()
	gatewayCfg.Timeout = cfg.LLM.Timeout
	gatewayCfg.MaxAttempts = cfg.LLM.MaxAttempts
	gatewayCfg.MaxBackoff = cfg.LLM.MaxBackoff
	gatewayCfg.RequestsPerMinute = cfg.LLM.RequestsPerMinute
	gateway := llm.NewGateway(primary, fallback, gatewayCfg, logger, llm.WithMetrics(m))

	chat := handlers.NewChatHandler(memoryManager, builder, gateway, engine, logger,
		handlers.WithHistoryWindow(cfg.HistoryWindow),
		handlers.WithMetrics(m),
	)
	logger.Info("✅ chat handler initialized")

	// Catalog sync
	var syncer *catalog.Syncer
	if cfg.Shopify.ShopDomain != "" && cfg.Shopify.AccessToken != "" {
		client := catalog.NewShopifyClient(catalog.ShopifyConfig{
			ShopDomain:  cfg.Shopify.ShopDomain,
			AccessToken: cfg.Shopify.AccessToken,
			APIVersion:  cfg.Shopify.APIVersion,
		}, logger)
		syncer = catalog.NewSyncer(client, products, digest, client.ShopDomain(), logger, m)

		if cfg.SyncSchedule != "" {
			scheduler, err := catalog.NewScheduler(syncer, cfg.SyncSchedule, logger)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()

			go func() {
				if _, err := syncer.Run(ctx); err != nil {
					logger.Error("initial catalog sync failed", zap.Error(err))
				}
			}()
		}
	} else {
		logger.Warn("Shopify credentials not set, catalog sync disabled")
	}

	// HTTP + websocket
	opts := []transport.HTTPOption{
		transport.WithGatherer(reg),
		transport.WithHealthCheck("catalog", products.Ping),
	}
	if storeCheck != nil {
		opts = append(opts, transport.WithHealthCheck("sessions", storeCheck))
	}
	if syncer != nil {
		opts = append(opts, transport.WithCatalogSyncer(syncer))
	}
	e := transport.NewHTTPServer(chat, logger, opts...).Echo()
	transport.NewWSServer(chat, cfg.LLM.Timeout*2, logger).Register(e)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("👂 listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// NATS
	if cfg.NatsURL != "" {
		natsTransport, err := transport.NewNATSTransport(cfg, chat, logger)
		if err != nil {
			return err
		}
		defer natsTransport.Close()
		if err := natsTransport.Start(); err != nil {
			return err
		}
	}

	logger.Info("✅ Naina chat service is running!")

	select {
	case <-ctx.Done():
		logger.Info("🛑 shutting down gracefully...")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("⚠️ error shutting down HTTP server", zap.Error(err))
	}

	logger.Info("👋 Naina chat service stopped", zap.Int("turns_in_flight", memoryManager.ActiveTurns()))
	return nil
}

func newProvider(ctx context.Context, name string, cfg config.LLMConfig) (llm.Provider, error) {
	switch name {
	case config.ProviderGroq:
		return llm.NewGroqProvider(cfg.GroqAPIKey, cfg.GroqModel, cfg.GroqBaseURL)
	case config.ProviderGemini:
		return llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.ProviderAnthropic:
		return llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	}
	_, err := cfg.APIKey(name)
	return nil, err
}
