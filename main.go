package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront-service/cart"
	"storefront-service/checkout"
	"storefront-service/config"
	"storefront-service/consumers"
	"storefront-service/controllers"
	"storefront-service/database"
	"storefront-service/events"
	"storefront-service/kafka"
	"storefront-service/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront cart and checkout service",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand(), newMigrateCommand())
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Open(cfg.DBDriver, cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("Schema applied", zap.String("driver", cfg.DBDriver))
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if !cfg.IsProduction() {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

// setupEvents wires the configured broker as publisher and starts its
// consumer. The returned func releases broker connections.
func setupEvents(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) (events.Publisher, func() error, func(), error) {
	handler := consumers.NewHandler(db, logger)

	switch cfg.EventBroker {
	case "rabbitmq":
		rmq, err := rabbitmq.NewRabbitMQ(cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		if err := rmq.SetupQueues(); err != nil {
			rmq.Close()
			return nil, nil, nil, fmt.Errorf("failed to setup RabbitMQ queues: %w", err)
		}
		if err := consumers.StartOrderConsumer(rmq.Channel, cfg, handler, logger); err != nil {
			rmq.Close()
			return nil, nil, nil, err
		}
		return rmq, rmq.HealthCheck, rmq.Close, nil

	case "kafka":
		producer, err := kafka.NewProducer(cfg.KafkaBrokerList(), cfg.KafkaTopic, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("kafka initialization failed: %w", err)
		}
		go func() {
			err := kafka.Consume(ctx, cfg.KafkaBrokerList(), cfg.KafkaTopic, cfg.KafkaGroupID, logger, handler.Handle)
			if err != nil {
				logger.Error("Kafka consumer stopped", zap.Error(err))
			}
		}()
		return producer, nil, func() { producer.Close() }, nil

	default:
		return events.Noop{}, nil, func() {}, nil
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer db.Close()

	if migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	policy, err := checkout.ParsePolicy(cfg.FreeShippingOver, cfg.FlatShippingFee)
	if err != nil {
		return err
	}

	publisher, brokerHealth, closeBroker, err := setupEvents(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeBroker()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	cartService := cart.NewService(db, publisher, logger)
	checkoutService := checkout.NewService(db, policy, publisher, logger)

	router := controllers.NewRouter(controllers.RouterDeps{
		Cart:      controllers.NewCartController(cartService, policy, cfg.IsProduction(), logger),
		Orders:    controllers.NewOrderController(checkoutService, logger),
		JWTSecret: cfg.JWTSecret,
		Logger:    logger,
		Health: func() error {
			if err := db.Ping(); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if brokerHealth != nil {
				return brokerHealth()
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Storefront service starting",
			zap.String("port", cfg.Port),
			zap.String("db_driver", cfg.DBDriver),
			zap.String("event_broker", cfg.EventBroker))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
