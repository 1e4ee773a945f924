package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pulsetrail/api/config"
	"pulsetrail/api/database"
	"pulsetrail/api/handlers"
	"pulsetrail/api/logging"
	"pulsetrail/api/middleware"
	"pulsetrail/api/store"
	"pulsetrail/api/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if cfg.Server.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = randomSecret()
		logging.Warn().Msg("JWT_SECRET_KEY not set; operator sessions will not survive a restart")
	}

	ctx := context.Background()

	eventStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to initialize event store")
	}
	defer closeStore()

	var publisher stream.Publisher = stream.NopPublisher{}
	if cfg.Kafka.Enabled() {
		publisher = stream.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logging.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("change feed enabled")
	}
	feed := stream.NewFeed(publisher, 10*time.Second)

	limiter := middleware.NewRateLimiter(cfg.Track.RatePerSecond, cfg.Track.Burst)
	loginLimiter := middleware.NewRateLimiter(cfg.Auth.LoginRatePerSecond, cfg.Auth.LoginBurst).WithScope("login")
	stopCleanup := make(chan struct{})
	go limiter.RunCleanup(5*time.Minute, stopCleanup)
	go loginLimiter.RunCleanup(5*time.Minute, stopCleanup)

	r := handlers.NewRouter(handlers.Dependencies{
		Config:       cfg,
		Store:        eventStore,
		Feed:         feed,
		Limiter:      limiter,
		LoginLimiter: loginLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().Str("port", cfg.Server.Port).Str("backend", cfg.Store.Backend).Msg("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("API server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server forced to shutdown")
	}

	close(stopCleanup)
	if err := feed.Close(); err != nil {
		logging.Error().Err(err).Msg("failed to close change feed")
	}

	logging.Info().Msg("server exited")
}

// openStore connects the configured backend and returns it with its cleanup.
func openStore(ctx context.Context, cfg *config.Config) (store.EventStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pg, err := database.NewPostgresDB(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.Migrate {
			if err := database.Migrate(pg.DB); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return store.NewPostgresStore(pg.DB), pg.Close, nil

	case config.BackendClickHouse:
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, nil, err
		}
		if err := ch.EnsureSchema(ctx); err != nil {
			ch.Close()
			return nil, nil, err
		}
		return store.NewClickHouseStore(ch.Conn), ch.Close, nil

	default:
		logging.Warn().Msg("using in-memory event store; events are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		logging.Fatal().Err(err).Msg("failed to generate JWT secret")
	}
	return hex.EncodeToString(b)
}
