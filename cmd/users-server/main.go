package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/usersvc/usersvc/internal/api"
	"github.com/usersvc/usersvc/internal/config"
	"github.com/usersvc/usersvc/internal/database"
	"github.com/usersvc/usersvc/internal/health"
	"github.com/usersvc/usersvc/internal/users"
)

// resources holds the connections opened at startup so they can be closed on shutdown
type resources struct {
	db    *bun.DB
	redis *redis.Client
}

func (r *resources) Close(logger *zap.Logger) {
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			logger.Error("Error closing redis client", zap.Error(err))
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}
}

func main() {
	config.Load()

	logger := initLogger()
	defer logger.Sync() //nolint:errcheck

	if err := config.Get().Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	as, res, err := newAppState(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application state", zap.Error(err))
	}

	if err := as.Health.StartupHealthCheck(ctx); err != nil {
		res.Close(logger)
		logger.Fatal("Startup health check failed", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(as)

	addr := config.Http().Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := setupSignalHandler(server, res, logger)

	logger.Info("Starting users server",
		zap.String("address", addr),
		zap.String("store", config.Store().Driver))

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	<-done
	logger.Info("Server shutdown complete")
}

// newAppState builds the user store selected by config and the services on top of it
func newAppState(ctx context.Context, logger *zap.Logger) (*api.AppState, *resources, error) {
	res := &resources{}
	healthManager := health.NewManager(logger)

	var store users.UserStore
	switch config.Store().Driver {
	case config.StoreDriverPostgres:
		pgConfig := config.Postgres()
		logger.Info("Database configuration",
			zap.String("host", pgConfig.Host),
			zap.Int("port", pgConfig.Port),
			zap.String("database", pgConfig.Database),
			zap.String("user", pgConfig.User))

		db, err := database.Open(ctx, database.Config{
			DSN:            pgConfig.DSN(),
			MaxConnections: pgConfig.MaxOpenConnections,
			ConnectTimeout: pgConfig.ConnectTimeoutDuration(),
		})
		if err != nil {
			return nil, nil, err
		}
		res.db = db

		if err := database.Migrate(ctx, db, logger); err != nil {
			res.Close(logger)
			return nil, nil, err
		}

		healthManager.AddChecker(health.NewDatabaseChecker(db))
		store = users.NewPostgresStore(db)

		if redisConfig := config.Redis(); redisConfig.Enabled {
			rdb := redis.NewClient(&redis.Options{
				Addr:     redisConfig.Addr(),
				Password: redisConfig.Password,
				DB:       redisConfig.Database,
			})
			res.redis = rdb

			healthManager.AddChecker(health.NewRedisChecker(rdb))
			store = users.NewCachedStore(store, rdb, redisConfig.TTLDuration(), logger)
			logger.Info("User cache enabled",
				zap.String("addr", redisConfig.Addr()),
				zap.String("ttl", redisConfig.TTL))
		}
	default:
		store = users.NewInMemoryStore()
	}

	healthManager.AddChecker(health.NewStoreChecker(store))
	userService := users.NewUserService(store, logger)

	if seedFile := config.Seed().File; seedFile != "" {
		seeds, err := users.LoadSeedFile(seedFile)
		if err != nil {
			res.Close(logger)
			return nil, nil, fmt.Errorf("failed to load seed users: %w", err)
		}
		if _, err := userService.SeedUsers(ctx, seeds); err != nil {
			res.Close(logger)
			return nil, nil, fmt.Errorf("failed to seed users: %w", err)
		}
	}

	return &api.AppState{
		UserService: userService,
		Health:      healthManager,
		Logger:      logger,
	}, res, nil
}

func initLogger() *zap.Logger {
	logConfig := config.Logger()

	var config zap.Config
	if logConfig.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	switch logConfig.Level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	return logger
}

func setupSignalHandler(server *http.Server, res *resources, logger *zap.Logger) chan struct{} {
	done := make(chan struct{}, 1)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalCh

		logger.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), config.Http().ShutdownTimeoutDuration())
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during server shutdown", zap.Error(err))
		}

		res.Close(logger)

		done <- struct{}{}
	}()

	return done
}
