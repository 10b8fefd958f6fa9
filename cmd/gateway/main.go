package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wabridge/config"
	core "wabridge/gateway/service/core"
	webhookhttp "wabridge/gateway/service/http"
	"wabridge/internal/messaging/producer"
	"wabridge/storage/dedup"
	"wabridge/storage/store"
)

// Gateway configuration file path, overridable via GATEWAY_CONFIG
const gatewayConfigPath = "./config/gateway.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting WhatsApp webhook gateway...")

	configPath := gatewayConfigPath
	if p := os.Getenv("GATEWAY_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadGatewayConfig(configPath)
	if err != nil {
		logger.Fatalf("Failed to load gateway configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Dependencies: ledger, dedup cache, handoff queue.
	logger.Println("Initializing database connection...")
	dbStore, err := store.NewPostgresStore(ctx, cfg.Database.DSN, cfg.Database.MinConnections, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database store: %v", err)
	}
	defer dbStore.Close()

	var dedupCache dedup.Cache = dedup.NopCache{}
	if cfg.Redis.Addr != "" {
		ttl := cfg.FreshnessThreshold + cfg.DedupTTLMargin
		cache, err := dedup.NewRedisCache(ctx, cfg.Redis, ttl, logger)
		if err != nil {
			// The ledger stays authoritative without the cache, so a Redis
			// outage at startup degrades rather than blocks.
			logger.Printf("Redis dedup cache unavailable, continuing without it: %v", err)
		} else {
			dedupCache = cache
		}
	} else {
		logger.Println("redis.addr not configured, skipping dedup cache.")
	}
	defer dedupCache.Close()

	queueProducer, err := newProducer(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize queue producer: %v", err)
	}
	defer queueProducer.Close()

	// Core service and HTTP handler.
	svc := core.NewService(logger, queueProducer, dbStore, dedupCache,
		cfg.Meta.BusinessPhoneNumberID, cfg.FreshnessThreshold)
	handler := webhookhttp.NewWebhookHandler(svc, logger, cfg.Meta.WebhookVerifyToken, cfg.AckDeadline)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/whatsapp/v1", handler.VerifyWebhook)
	r.Post("/whatsapp/v1", handler.ReceiveWebhook)
	r.Get(cfg.Monitoring.HealthCheckPath, handler.HealthCheck)
	r.Handle(cfg.Monitoring.MetricsPath, promhttp.Handler())

	readTimeout := cfg.HttpServer.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}
	writeTimeout := cfg.HttpServer.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = cfg.AckDeadline + 5*time.Second
	}
	idleTimeout := cfg.HttpServer.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}
	maxHeaderBytes := cfg.HttpServer.MaxHeaderBytes
	if maxHeaderBytes == 0 {
		maxHeaderBytes = 1 << 20 // 1 MB
	}

	httpServer := &http.Server{
		Addr:           cfg.HttpListenAddr,
		Handler:        r,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Printf("HTTP server listening on %s", cfg.HttpListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server startup failed: %v", err)
		}
		logger.Println("HTTP server stopped listening.")
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received shutdown signal: %s, starting graceful shutdown of gateway...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	logger.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown failed: %v", err)
	} else {
		logger.Println("HTTP server shutdown.")
	}

	wg.Wait()
	logger.Println("All servers stopped. Gateway shutdown.")
}

// newProducer picks the handoff queue backend from configuration.
func newProducer(cfg *config.GatewayConfig, logger *log.Logger) (producer.Producer, error) {
	switch cfg.Queue.Backend {
	case "kafka":
		logger.Println("Initializing Kafka producer...")
		return producer.NewKafkaProducer(cfg.Queue.KafkaProducer, logger)
	case "rabbitmq":
		logger.Println("Initializing RabbitMQ producer...")
		return producer.NewRabbitMQProducer(cfg.Queue.RabbitMQ, logger)
	default:
		logger.Println("Using mock queue producer.")
		return producer.NewMockProducer(logger), nil
	}
}
