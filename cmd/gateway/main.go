package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/postwave/post-gateway/internal/adapter"
	"github.com/postwave/post-gateway/internal/config"
	"github.com/postwave/post-gateway/internal/core"
	"github.com/postwave/post-gateway/internal/creds"
	"github.com/postwave/post-gateway/internal/db"
	httpapi "github.com/postwave/post-gateway/internal/http"
	"github.com/postwave/post-gateway/internal/metrics"
	"github.com/postwave/post-gateway/internal/publish"
	"github.com/postwave/post-gateway/internal/ratelimit"
	"github.com/postwave/post-gateway/internal/retry"
	"github.com/postwave/post-gateway/internal/scheduler"
	"github.com/postwave/post-gateway/internal/stats"
	"github.com/postwave/post-gateway/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics.MustRegister()

	// ---- Post store ----
	var (
		postStore store.Store
		pool      *pgxpool.Pool
	)
	if cfg.PostgresDSN != "" {
		var err error
		pool, err = db.Connect(rootCtx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres")
		}
		defer pool.Close()
		if err := db.Migrate(rootCtx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		postStore = store.NewPostgres(pool)
		logger.Info().Msg("using postgres post store")
	} else {
		postStore = store.NewMemory()
		logger.Info().Msg("using in-memory post store")
	}

	// ---- Channels: limits + credentials ----
	limits := cfg.ChannelLimits
	credStore := creds.NewStore()
	if cfg.ChannelsFile != "" {
		entries, err := config.LoadChannels(cfg.ChannelsFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ChannelsFile).Msg("load channels file")
		}
		for _, e := range entries {
			if e.PostsPerHour > 0 {
				limits[e.Name] = e.PostsPerHour
			}
			if e.AccessToken != "" {
				credStore.Put(core.Credentials{Channel: e.Name, AccessToken: e.AccessToken, ExpiresAt: e.ExpiresAt})
			}
		}
	}

	// ---- Rate limiter ----
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		limiter = ratelimit.NewRedisWindow(rdb, cfg.RateLimitWindow, limits, logger)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using shared redis rate-limit window")
	} else {
		limiter = ratelimit.NewWindow(cfg.RateLimitWindow, limits, logger)
	}

	// ---- Channel adapters ----
	registry := adapter.NewRegistry()
	registry.Register("twitter", adapter.NewTwitter())
	registry.Register("linkedin", adapter.NewLinkedIn(cfg.LinkedInAuthorURN))

	// ---- Engine + facade ----
	policy := retry.NewPolicy(cfg.BackoffStep, cfg.RateLimitCooldown)
	aggregator := stats.NewAggregator()
	dispatcher := scheduler.NewDispatcher(postStore, credStore, registry, limiter, policy, aggregator,
		scheduler.DispatcherConfig{
			CallTimeout: cfg.CallTimeout,
			Cooldown:    cfg.RateLimitCooldown,
			PaceQPS:     cfg.PaceQPS,
			PaceBurst:   cfg.PaceBurst,
		}, logger)
	engine := scheduler.NewEngine(postStore, dispatcher,
		scheduler.EngineOptions{PollInterval: cfg.PollInterval, BatchSize: cfg.BatchSize}, logger)
	publisher := publish.New(postStore, registry, credStore, dispatcher, aggregator, cfg.DefaultMaxRetries, logger)

	engine.Start(rootCtx)

	// ---- Ops HTTP server ----
	srv := httpapi.NewServer(publisher)
	if pool != nil {
		srv.Ready = pool.Ping
	}
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("ops API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	<-rootCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("scheduler stop")
	}
	_ = server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Env == "dev" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(cw).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
