package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/salmaimassenda2023/order-service/internal/client"
	"github.com/salmaimassenda2023/order-service/internal/repository"
	"github.com/salmaimassenda2023/order-service/internal/service"
	transport "github.com/salmaimassenda2023/order-service/internal/transport/http"
	"github.com/salmaimassenda2023/order-service/pkg/config"
	"github.com/salmaimassenda2023/order-service/pkg/db"
	"github.com/salmaimassenda2023/order-service/pkg/kafka"
	"github.com/salmaimassenda2023/order-service/pkg/mylogger"
	outboxRepository "github.com/salmaimassenda2023/order-service/pkg/outbox/repository"
	"github.com/salmaimassenda2023/order-service/pkg/outbox/worker"
	"github.com/salmaimassenda2023/order-service/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := utils.InitTracer(ctx, "order-service")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	orderRepo := repository.NewOrderRepository(pool, logger)
	inventoryRepo := repository.NewInventoryRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	customerClient := client.NewCustomerClient(cfg.Services.CustomerURL, cfg.Saga.StepTimeout, logger)
	paymentClient := client.NewPaymentClient(cfg.Services.PaymentURL, cfg.Saga.StepTimeout, logger)

	orderService := service.NewOrderService(
		pool,
		logger,
		orderRepo,
		inventoryRepo,
		outboxRepo,
		customerClient,
		paymentClient,
		cfg.Saga.StepTimeout,
		cfg.Kafka.ConfirmationTopic,
	)
	orderHandler := transport.NewOrderHandler(orderService, logger)

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)

	go outboxProcessor.Start(ctx)

	app := fiber.New(fiber.Config{
		ReadTimeout: cfg.HTTP.Timeout,
	})
	transport.RegisterRoutes(app, orderHandler)

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("error serving HTTP: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, exit := context.WithTimeout(context.Background(), time.Second*5)
	defer exit()

	mylogger.Info(
		shutdownCtx,
		logger,
		"Shutting down order service",
	)

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to shut down HTTP server",
			zap.Error(err),
		)
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to close kafka producer",
			zap.Error(err),
		)
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to shut down telemetry",
			zap.Error(err),
		)
	}

	pool.Close()
}
