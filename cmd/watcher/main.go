package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/takuyadev/amazon-price-watcher/internal/api"
	"github.com/takuyadev/amazon-price-watcher/internal/browser"
	"github.com/takuyadev/amazon-price-watcher/internal/buyer"
	"github.com/takuyadev/amazon-price-watcher/internal/config"
	"github.com/takuyadev/amazon-price-watcher/internal/driver"
	"github.com/takuyadev/amazon-price-watcher/internal/engine"
	"github.com/takuyadev/amazon-price-watcher/internal/models"
	"github.com/takuyadev/amazon-price-watcher/internal/monitor"
	"github.com/takuyadev/amazon-price-watcher/internal/notify"
	"github.com/takuyadev/amazon-price-watcher/internal/ratelimit"
	"github.com/takuyadev/amazon-price-watcher/internal/session"
	"github.com/takuyadev/amazon-price-watcher/internal/store"
)

func main() {
	// Setup logging
	cfgLevel := os.Getenv("LOG_LEVEL")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfgLevel),
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	st, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Browser setup
	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	// Live purchasing needs an authenticated session up front; dry runs
	// never get a checkout-capable buyer at all.
	var orderer buyer.Buyer = buyer.DryRun{}
	if cfg.Purchase.AutoBuyEnabled && !cfg.Purchase.DryRun {
		sess := session.New(b, cfg.Amazon.BaseURL, session.Credentials{
			Email:    cfg.Amazon.Email,
			Password: cfg.Amazon.Password,
		}, cfg.Browser.Timeout)
		if err := sess.EnsureLoggedIn(ctx); err != nil {
			logger.Error("sign-in failed", "error", err)
			os.Exit(1)
		}
		orderer = buyer.NewPlaywrightBuyer(b, sess, cfg.Amazon.BaseURL, cfg.Browser.Timeout)
	}

	// Backend drivers in the configured priority order.
	drivers, err := buildDrivers(cfg, b)
	if err != nil {
		logger.Error("failed to build drivers", "error", err)
		os.Exit(1)
	}
	selector := engine.NewSelector(drivers)
	backoff := engine.NewBackoff()

	// Notification channels
	dispatcher, redisClose, err := buildDispatcher(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize notifications", "error", err)
		os.Exit(1)
	}
	defer redisClose()

	policy, err := cfg.PurchasePolicy()
	if err != nil {
		logger.Error("invalid purchase policy", "error", err)
		os.Exit(1)
	}
	policies, err := cfg.PurchasePolicies()
	if err != nil {
		logger.Error("invalid per-product purchase policy", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewSimpleRateLimiter(cfg.Monitor.RateLimitMin, cfg.Monitor.RateLimitMax)

	mon := monitor.New(selector, backoff, st, dispatcher, orderer, limiter, monitor.Options{
		ASINs:       cfg.Monitor.ASINs,
		Policy:      policy,
		Policies:    policies,
		Interval:    cfg.Monitor.Interval,
		Jitter:      cfg.Monitor.Jitter,
		Concurrency: cfg.Monitor.ConcurrentLimit,
		DryRun:      cfg.Purchase.DryRun,
	})

	monitorDone := make(chan error, 1)
	go func() { monitorDone <- mon.Run(ctx) }()

	// Setup Chi router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.NewHandlers(st, cfg.Monitor.ASINs, logger).Routes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigChan:
			logger.Info("shutting down...")
		case err := <-monitorDone:
			if err != nil {
				logger.Error("monitor stopped with error", "error", err)
			}
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	// Let the monitor finish its in-flight work before the deferred
	// browser teardown runs.
	select {
	case <-monitorDone:
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn("monitor did not stop in time")
	}

	logger.Info("server stopped")
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "file":
		fs, err := store.NewFileStore(cfg.Store.File)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	case "postgres":
		ps, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.DBName,
			MaxConns:    10,
			MinConns:    2,
			MaxConnLife: time.Hour,
			MaxConnIdle: 30 * time.Minute,
		})
		if err != nil {
			return nil, nil, err
		}
		return ps, ps.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

func buildDrivers(cfg *config.Config, b *browser.Browser) ([]driver.Driver, error) {
	userAgent := browser.DefaultOptions().UserAgent
	drivers := make([]driver.Driver, 0, len(cfg.Monitor.BackendPriority))
	for _, backend := range cfg.Monitor.BackendPriority {
		switch backend {
		case models.BackendPlaywright:
			drivers = append(drivers, driver.NewPlaywrightDriver(b, cfg.Amazon.BaseURL, cfg.Browser.Timeout))
		case models.BackendChromedp:
			drivers = append(drivers, driver.NewChromedpDriver(cfg.Amazon.BaseURL, userAgent, cfg.Browser.Timeout))
		case models.BackendColly:
			drivers = append(drivers, driver.NewCollyDriver(cfg.Amazon.BaseURL, userAgent, cfg.Browser.Timeout))
		default:
			return nil, fmt.Errorf("unknown backend: %q", backend)
		}
	}
	return drivers, nil
}

func buildDispatcher(ctx context.Context, cfg *config.Config) (*notify.Dispatcher, func(), error) {
	var notifiers []notify.Notifier
	closeFn := func() {}

	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notify.SlackWebhookURL))
	}
	if cfg.Notify.SMTPHost != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(
			cfg.Notify.SMTPHost, cfg.Notify.SMTPPort,
			cfg.Notify.SMTPUsername, cfg.Notify.SMTPPassword,
			cfg.Notify.EmailFrom, cfg.Notify.EmailTo))
	}
	if cfg.Notify.RedisEnabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		notifiers = append(notifiers, notify.NewRedisNotifier(redisClient, cfg.Redis.Stream))
		closeFn = func() { redisClient.Close() }
	}

	return notify.NewDispatcher(notifiers), closeFn, nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
