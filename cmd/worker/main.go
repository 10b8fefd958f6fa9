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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wabridge/config"
	"wabridge/internal/backend"
	"wabridge/internal/messaging/consumer"
	"wabridge/internal/messaging/producer"
	"wabridge/internal/whatsapp"
	"wabridge/processing"
	"wabridge/storage/store"
)

// Worker configuration file path, overridable via WORKER_CONFIG
const workerConfigPath = "./config/worker.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting deferred message processor...")

	// 1. Load Worker Config
	configPath := workerConfigPath
	if p := os.Getenv("WORKER_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadWorkerConfig(configPath)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load worker configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Dependencies
	logger.Println("Initializing database connection...")
	dbStore, err := store.NewPostgresStore(ctx, cfg.Database.DSN, cfg.Database.MinConnections, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize database store: %v", err)
	}
	defer dbStore.Close()

	backendClient := newBackendClient(cfg, logger)
	sender := newSender(cfg, logger)

	conversation := processing.NewConversation(logger, backendClient, sender,
		time.Duration(cfg.ChatRetentionHours)*time.Hour, cfg.DeploymentType, cfg.MaintenanceMode)

	// The reconciler needs a producer to re-enqueue stuck deliveries.
	queueProducer, err := newProducer(cfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize queue producer: %v", err)
	}
	defer queueProducer.Close()

	// 3. Initialize Consumers
	mqConsumers, err := newConsumers(cfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: %v", err)
	}
	defer func() {
		for _, c := range mqConsumers {
			c.Close()
		}
	}()

	// 4. Start Workers, one pool per consumer
	var wg sync.WaitGroup
	for i, mqConsumer := range mqConsumers {
		w := processing.New(cfg, logger, dbStore, mqConsumer, conversation)

		wg.Add(1)
		go func(workerID int, w *processing.Worker) {
			defer wg.Done()
			logger.Printf("Starting worker %d with its dedicated consumer...", workerID)
			w.Run(ctx)
			logger.Printf("Worker %d stopped.", workerID)
		}(i+1, w)
	}

	// 5. Start the reconciler sweep
	reconciler := processing.NewReconciler(cfg.Reconciler, logger, dbStore, queueProducer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	// 6. Metrics endpoint, optional
	var metricsServer *http.Server
	if cfg.Monitoring.MetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Monitoring.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Monitoring.MetricsListenAddr, Handler: mux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Printf("Metrics server listening on %s", cfg.Monitoring.MetricsListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("Metrics server startup failed: %v", err)
			}
		}()
	}

	logger.Printf("Processor started with %d consumers. Press Ctrl+C to stop.", len(mqConsumers))

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("Received shutdown signal, initiating graceful shutdown...")
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Metrics server shutdown failed: %v", err)
		}
		shutdownCancel()
	}

	logger.Println("Waiting for all workers to finish...")
	wg.Wait()

	logger.Println("Processor shut down gracefully.")
}

// newBackendClient returns the assistant backend client. The literal base URL
// "mock" selects the in-memory client for local runs without a backend.
func newBackendClient(cfg *config.WorkerConfig, logger *log.Logger) backend.Client {
	if cfg.Backend.BaseURL == "mock" {
		logger.Println("Using mock assistant backend client.")
		return backend.NewMockClient()
	}
	return backend.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, cfg.Backend.StreamTimeout)
}

// newSender returns the outbound WhatsApp channel. Without Graph API
// credentials replies go to the log instead.
func newSender(cfg *config.WorkerConfig, logger *log.Logger) whatsapp.Sender {
	if cfg.Meta.AccessToken == "" || cfg.Meta.BusinessPhoneNumberID == "" {
		logger.Println("Meta credentials not configured, using mock sender.")
		return whatsapp.NewMockSender(logger)
	}
	sender, err := whatsapp.NewGraphSender(cfg.Meta, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize Graph API sender: %v", err)
	}
	return sender
}

func newProducer(cfg *config.WorkerConfig, logger *log.Logger) (producer.Producer, error) {
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

func newConsumers(cfg *config.WorkerConfig, logger *log.Logger) ([]consumer.Consumer, error) {
	var mqConsumers []consumer.Consumer
	switch cfg.Queue.Backend {
	case "kafka":
		logger.Printf("Initializing %d Kafka message queue consumers...", cfg.Queue.KafkaConsumer.Count)
		for i := 0; i < cfg.Queue.KafkaConsumer.Count; i++ {
			kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.Queue.KafkaConsumer, logger)
			if err != nil {
				return nil, err
			}
			mqConsumers = append(mqConsumers, kafkaConsumer)
		}
	case "rabbitmq":
		logger.Println("Initializing RabbitMQ message queue consumer...")
		rmqConsumer, err := consumer.NewRabbitMQConsumer(cfg.Queue.RabbitMQ, logger)
		if err != nil {
			return nil, err
		}
		mqConsumers = append(mqConsumers, rmqConsumer)
	default:
		logger.Println("Initializing Mock message queue consumer...")
		mqConsumers = append(mqConsumers, consumer.NewMockConsumer(logger))
	}
	return mqConsumers, nil
}
