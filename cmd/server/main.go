package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hotel-relay/internal/api"
	"hotel-relay/internal/auth"
	"hotel-relay/internal/chat"
	"hotel-relay/internal/config"
	"hotel-relay/internal/db"
	"hotel-relay/internal/email"
	"hotel-relay/internal/logging"
	"hotel-relay/internal/middleware"
	"hotel-relay/internal/pubsub"
	"hotel-relay/internal/repository"
	"hotel-relay/internal/reviews"
	tasks "hotel-relay/internal/Tasks"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	logger.Debug().
		Bool("dotenv", cfg.DotEnvLoaded).
		Strs("defaulted", cfg.Defaulted).
		Msg("configuration loaded")
	logger.Info().Str("env", cfg.Env).Str("addr", cfg.Addr()).Str("store", cfg.StoreDriver).Msg("starting hotel relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg, logging.Component(logger, "store"))
	defer store.Close()

	broker := openBroker(ctx, cfg, logging.Component(logger, "pubsub"))
	defer broker.Close()

	issuer := auth.NewIssuer(cfg.AuthKey)
	directory, err := auth.ParseDirectory(cfg.AdminUsers)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid ADMIN_USERS")
	}
	if directory.Len() == 0 {
		logger.Warn().Msg("no admin users configured, staff login is disabled")
	}

	origins, err := middleware.NewOriginPolicy(cfg.AllowedOrigins, cfg.AllowedOriginPattern)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid ALLOWED_ORIGIN_PATTERN")
	}

	proxies, err := middleware.NewProxyPolicy(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
	}

	relay := chat.NewRelay(store, broker, issuer, chat.Config{
		HistoryLimit: cfg.HistoryLimit,
		StoreTimeout: cfg.StoreTimeout,
		PingInterval: cfg.PingInterval,
		PingTimeout:  cfg.PingTimeout,
	}, origins.CheckOrigin, logging.Component(logger, "relay"))
	if err := relay.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start relay")
	}

	sender, err := email.New(cfg.EmailProvider, cfg.EmailAPIKey, cfg.EmailSender, logging.Component(logger, "email"))
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid email configuration")
	}

	catalog := reviews.NewCatalog(logging.Component(logger, "reviews"),
		reviews.Source{Name: "primary", Path: cfg.ReviewsPrimaryCSV},
		reviews.Source{Name: "secondary", Path: cfg.ReviewsSecondaryCSV},
	)
	if _, err := catalog.Reload(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial review load incomplete")
	}

	scheduler := tasks.NewScheduler(logging.Component(logger, "scheduler"))
	if err := scheduler.AddReviewReload(cfg.ReviewsSchedule, catalog); err != nil {
		logger.Fatal().Err(err).Msg("invalid REVIEWS_SCHEDULE")
	}
	if err := scheduler.AddPoolSampler(tasks.PoolSampleSchedule, store); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule pool sampler")
	}
	scheduler.Start()

	router := api.NewRouter(api.Deps{
		Relay:     relay,
		Store:     store,
		Broker:    broker,
		Issuer:    issuer,
		Directory: directory,
		Email:     sender,
		Reviews:   catalog,
		Origins:   origins,
		Proxies:   proxies,
		Session: api.SessionOptions{
			TTL:      cfg.TokenTTL,
			RelayTTL: cfg.RelayTokenTTL,
			Secure:   !cfg.IsDevelopment(),
		},
		BookingRecipient: cfg.BookingRecipient,
		Logger:           logging.Component(logger, "http"),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, cleaning up")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	relay.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	scheduler.Stop(shutdownCtx)

	logger.Info().Msg("graceful shutdown complete")
}

// openStore connects the configured message store. Failing to connect or to
// create the schema ends the process.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) repository.MessageRepo {
	var store repository.MessageRepo

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("failed to open sqlite store")
		}
		store = repository.NewSQLiteMessagesRepo(sqlDB, logger)
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("dsn", cfg.MaskedDatabaseURL()).Msg("failed to connect to database")
		}
		store = repository.NewMessagesRepo(pool, logger)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(schemaCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create message schema")
	}
	return store
}

func openBroker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) pubsub.Broker {
	if cfg.RedisURL == "" {
		logger.Info().Msg("using in-process broker")
		return pubsub.NewWatermillBroker(logging.NewWatermillAdapter(logger), logger)
	}

	broker, err := pubsub.NewRedisBroker(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	logger.Info().Msg("using redis broker")
	return broker
}
