package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MikeSquared-Agency/Bazaar/internal/api"
	"github.com/MikeSquared-Agency/Bazaar/internal/broker"
	"github.com/MikeSquared-Agency/Bazaar/internal/config"
	"github.com/MikeSquared-Agency/Bazaar/internal/fees"
	"github.com/MikeSquared-Agency/Bazaar/internal/hermes"
	"github.com/MikeSquared-Agency/Bazaar/internal/invitations"
	"github.com/MikeSquared-Agency/Bazaar/internal/lifecycle"
	"github.com/MikeSquared-Agency/Bazaar/internal/matchcache"
	"github.com/MikeSquared-Agency/Bazaar/internal/metrics"
	"github.com/MikeSquared-Agency/Bazaar/internal/profiles"
	"github.com/MikeSquared-Agency/Bazaar/internal/ranking"
	"github.com/MikeSquared-Agency/Bazaar/internal/scoring"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Store
	var db store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if cfg.Database.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
		}
		db = pg
		logger.Info("connected to database")
	} else {
		db = store.NewMemoryStore()
		logger.Warn("no database configured, using in-memory store")
	}
	defer db.Close()

	// Match cache
	var cache matchcache.Cache
	if cfg.Redis.Addr != "" {
		rc, err := matchcache.NewRedisCache(ctx, matchcache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("failed to connect to redis, caching matches in process", "error", err)
			cache = matchcache.NewMemoryCache()
		} else {
			cache = rc
			logger.Info("connected to redis")
		}
	} else {
		cache = matchcache.NewMemoryCache()
	}
	defer cache.Close()

	// Hermes (optional)
	var hermesClient hermes.Client
	if cfg.Hermes.URL != "" {
		opts := hermes.DefaultOptions()
		opts.QueueGroup = cfg.Hermes.QueueGroup
		if d, err := time.ParseDuration(cfg.Hermes.StreamMaxAge); err == nil {
			opts.StreamMaxAge = d
		}
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, opts, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	// Profiles
	var profileClient profiles.Client
	if cfg.Profiles.URL != "" {
		profileClient = profiles.NewHTTPClient(cfg.Profiles.URL, cfg.Profiles.Token)
	} else {
		profileClient = profiles.NewStaticClient()
		logger.Warn("no profile service configured, profiles are empty")
	}

	// Engine
	calc, err := fees.NewCalculator(fees.FromConfig(cfg.Fees))
	if err != nil {
		logger.Error("invalid fee schedule", "error", err)
		os.Exit(1)
	}
	scorer, err := scoring.NewMatchScorer(scoring.SettingsFromConfig(cfg.Scoring), calc, nil, logger)
	if err != nil {
		logger.Error("invalid scoring settings", "error", err)
		os.Exit(1)
	}
	matcher := scoring.NewMatcher(scorer, cache, cfg.MatchTTL(), m, logger)

	deps := lifecycle.Deps{Store: db, Hermes: hermesClient, Metrics: m, Logger: logger}
	rules := lifecycle.RulesFromConfig(cfg.Lifecycle)
	jobs := lifecycle.NewJobManager(deps, rules, matcher)
	proposals := lifecycle.NewProposalManager(deps, rules, calc, matcher, profileClient)
	invites := invitations.NewManager(db, hermesClient, m, cfg.InvitationTTL(), logger)

	// Broker
	b := broker.New(invites, matcher, hermesClient, cfg.SweepInterval(), logger)
	b.Start(ctx)
	defer b.Stop()
	b.SetupSubscriptions()
	logger.Info("broker started", "sweep_interval", cfg.SweepInterval())

	// API server
	router := api.NewRouter(api.Deps{
		Store:       db,
		Jobs:        jobs,
		Proposals:   proposals,
		Invitations: invites,
		Matcher:     matcher,
		Ranking:     ranking.NewEngine(cfg.Search, m),
		Profiles:    profileClient,
		Fees:        calc,
		AdminToken:  cfg.Server.AdminToken,
		Logger:      logger,
	})
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(reg),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
