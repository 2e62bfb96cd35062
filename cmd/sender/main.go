package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bayy420-999/whatsapp-sender/internal/config"
	"github.com/bayy420-999/whatsapp-sender/internal/engine"
	"github.com/bayy420-999/whatsapp-sender/internal/events"
	"github.com/bayy420-999/whatsapp-sender/internal/handler"
	"github.com/bayy420-999/whatsapp-sender/internal/infra/postgresql"
	"github.com/bayy420-999/whatsapp-sender/internal/infra/postgresql/migrations"
	infraredis "github.com/bayy420-999/whatsapp-sender/internal/infra/redis"
	"github.com/bayy420-999/whatsapp-sender/internal/messenger"
	"github.com/bayy420-999/whatsapp-sender/internal/observability"
	"github.com/bayy420-999/whatsapp-sender/internal/store"
	"github.com/bayy420-999/whatsapp-sender/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("sender exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, sqlDB, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer sessions.Close()

	var rdb *goredis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		rmq, err := events.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		publisher = events.NewRabbitMQPublisher(rmq)
	}
	defer publisher.Close()

	msgr, err := messenger.NewGatewayMessenger(cfg.GatewayURL, cfg.GatewayAPIKey)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	blastEngine, err := engine.New(msgr, sessions, logger)
	if err != nil {
		return err
	}
	blastEngine.SetMetrics(metrics)
	blastEngine.SetPublisher(publisher)
	if rdb != nil {
		sessionLock, err := infraredis.NewSessionLock(rdb, 0)
		if err != nil {
			return err
		}
		blastEngine.SetLocker(sessionLock)
	}

	janitor, err := engine.NewJanitor(
		blastEngine,
		sessions,
		time.Duration(cfg.JanitorIntervalSeconds)*time.Second,
		time.Duration(cfg.StaleAfterSeconds)*time.Second,
		logger,
		metrics,
	)
	if err != nil {
		return err
	}

	defaults, err := cfg.DelaySettings()
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterSessionRoutes(app, ctx, blastEngine, sessions, defaults, logger); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("whatsapp sender api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		return janitor.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested, interrupting running sessions")
		blastEngine.InterruptAll()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("whatsapp sender stopped")
	return nil
}

// openStore selects the session store driver. The postgres driver also hands
// back its sql.DB for the readiness probe; the file driver has nothing to
// probe.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, *sql.DB, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "", "postgres":
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("database migrations failed: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		return store.NewGormStore(db), sqlDB, nil
	case "file":
		fileStore, err := store.NewFileStore(cfg.SessionsDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return fileStore, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
