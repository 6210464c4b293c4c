package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"

	"ecofinds/internal/auth"
	"ecofinds/internal/config"
	"ecofinds/internal/database"
	"ecofinds/internal/handlers"
	"ecofinds/internal/logger"
	"ecofinds/internal/presenter"
	"ecofinds/internal/repositories"
	"ecofinds/internal/server"
	"ecofinds/internal/services"
	"ecofinds/internal/storage"
	"ecofinds/pkg/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ecofinds: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	// --- Database ---
	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}()
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("database ready", "driver", cfg.Database.Driver)

	// --- Events ---
	var publisher services.EventPublisher = services.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ client: %w", err)
		}
		defer mqClient.Close()
		publisher = mqClient

		if err := mqClient.ConsumeProductEvents(logProductEvent(log)); err != nil {
			log.Warn("failed to start product event consumer", "error", err)
		}
	} else {
		log.Info("RABBITMQ_URL not set, product events are disabled")
	}

	// --- Services ---
	store := storage.NewLocalImageStore(cfg.UploadDir, cfg.PublicBaseURL)
	mapper := presenter.NewMapper(store)

	authService, err := services.NewAuthService(
		repositories.NewGORMUserRepository(db),
		auth.NewPasswordHasher(cfg.BcryptCost),
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		log,
	)
	if err != nil {
		return err
	}
	productService := services.NewProductService(repositories.NewGORMProductRepository(db), store, publisher, log)

	// --- HTTP ---
	app := server.NewApp(server.Handlers{
		Auth:    handlers.NewAuthHandler(authService, mapper, log),
		Product: handlers.NewProductHandler(productService, mapper, log),
		Upload:  handlers.NewUploadHandler(store, log),
	}, server.Options{
		BodyLimit:        cfg.MaxUploadBytes,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	}, log)

	listenErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.AppPort, "upload_dir", store.Root())
		listenErr <- app.Listen(cfg.AppPort)
	}()

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-listenErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", "signal", sig.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	log.Info("server gracefully stopped")
	return nil
}

// logProductEvent records every product event taken off the queue.
func logProductEvent(log *logger.Logger) func(amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		var event services.ProductEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return fmt.Errorf("malformed product event: %w", err)
		}
		log.Info("product event received",
			"type", event.Type,
			"product_id", event.ProductID,
			"image_id", event.ImageID,
			"primary_image_id", event.PrimaryImageID,
			"image_count", event.ImageCount,
			"occurred_at", event.OccurredAt,
		)
		return nil
	}
}
