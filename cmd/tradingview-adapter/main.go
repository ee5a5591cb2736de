package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/tradingview-adapter/internal/api"
	"github.com/Checker-Finance/tradingview-adapter/internal/hub"
	"github.com/Checker-Finance/tradingview-adapter/internal/publisher"
	sig "github.com/Checker-Finance/tradingview-adapter/internal/signal"
	"github.com/Checker-Finance/tradingview-adapter/internal/store"
	"github.com/Checker-Finance/tradingview-adapter/pkg/config"
	"github.com/Checker-Finance/tradingview-adapter/pkg/logger"
	"github.com/Checker-Finance/tradingview-adapter/pkg/secrets"
	"github.com/Checker-Finance/tradingview-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [tradingview-adapter]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Resolve secrets from AWS Secrets Manager (optional) ---
	if cfg.SecretsName != "" {
		provider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		resolved, err := provider.GetSecret(ctx, cfg.SecretsName)
		if err != nil {
			logg.Fatalw("failed to resolve secrets", "name", cfg.SecretsName, "error", err)
		}
		if v, ok := resolved["api_key"]; ok && v != "" {
			cfg.APIKey = v
		}
		if v, ok := resolved["hmac_secret"]; ok && v != "" {
			cfg.HMACSecret = v
		}
		logg.Infow("secrets resolved", "name", cfg.SecretsName)
	}

	if cfg.Hardened() {
		logg.Info("hardened mode: webhook signatures enforced")
	} else {
		logg.Warn("hardened mode off: webhook signatures NOT enforced")
	}

	// --- Connect to NATS (optional mirror of accepted signals) ---
	var pub *publisher.Publisher
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Warnw("NATS unavailable; accepted signals will not be mirrored to the bus",
			"url", cfg.NATSURL, "error", err)
		nc = nil
	} else {
		pub, err = publisher.New(nc, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
	}

	// --- Store (Postgres + Redis snapshot cache) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		logg.Fatalw("failed to ensure schema", "error", err)
	}

	// --- Fan-out hub + websocket broadcast listener ---
	fanout := hub.New(logg.Desugar())
	wsServer := hub.NewWSServer(fanout, logg.Desugar())
	go func() {
		logg.Infof("websocket broadcast listening on :%d", cfg.WSPort)
		if err := wsServer.Listen(cfg.WSPort); err != nil {
			logg.Fatalw("ws.listen_failed", "error", err)
		}
	}()

	// --- Handlers ---
	var eventPub sig.EventPublisher
	if pub != nil {
		eventPub = pub
	}
	webhookHandler := sig.NewWebhookHandler(
		logg.Desugar(),
		st,
		fanout,
		eventPub,
		cfg.HMACSecret,
		cfg.Hardened(),
		cfg.DefaultSymbol,
		"X-Signature",
	)

	keyAuth := api.NewKeyAuth(cfg.APIKey)
	ordersHandler := api.NewOrdersHandler(logg.Desugar(), st, keyAuth)
	sseHandler := api.NewSSEHandler(fanout, cfg.SSERetry, logg.Desugar())

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	if cfg.Env == "prod" && cfg.FrontendOrigin != "" {
		app.Use(cors.New(cors.Config{AllowOrigins: cfg.FrontendOrigin}))
	} else {
		app.Use(cors.New())
	}

	api.RegisterRoutes(app, nc, st, webhookHandler, ordersHandler, sseHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[tradingview-adapter] running",
		"env", cfg.Env,
		"port", cfg.Port,
		"ws_port", cfg.WSPort,
		"hardened", cfg.Hardened())

	<-ctx.Done()
	logg.Info("shutting down [tradingview-adapter]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logg.Warnw("ws.shutdown_failed", "error", err)
	}
	fanout.Close()
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
