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

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/mstgnz/oxipay/handler"
	"github.com/mstgnz/oxipay/infra/config"
	"github.com/mstgnz/oxipay/infra/lock"
	"github.com/mstgnz/oxipay/infra/logger"
	"github.com/mstgnz/oxipay/infra/metrics"
	"github.com/mstgnz/oxipay/infra/middle"
	"github.com/mstgnz/oxipay/infra/opensearch"
	"github.com/mstgnz/oxipay/infra/storage"
	"github.com/mstgnz/oxipay/provider"
	"github.com/mstgnz/oxipay/reconcile"
	"github.com/mstgnz/oxipay/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env is optional, the process environment wins
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Load Env Error: %v", err)
	}

	if err := run(); err != nil {
		log.Fatalf("oxipay: %v", err)
	}
}

func run() error {
	cfg := config.GetAppConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// OpenSearch client and event sink
	osClient, err := opensearch.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("opensearch client: %w", err)
	}
	events := opensearch.NewLogger(osClient)
	if osClient.IsEnabled() {
		logger.InitGlobalLogger(events, cfg.LogFile)
	} else {
		logger.InitGlobalLogger(nil, cfg.LogFile)
	}
	defer func() {
		events.Wait()
		_ = logger.GetGlobalLogger().Close()
	}()

	store, err := storage.NewSQLiteStorage(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("sqlite storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	merchant := config.NewMerchantConfig(ctx, store).Snapshot()
	if err := merchant.Validate(); err != nil {
		return fmt.Errorf("invalid merchant settings: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var locker reconcile.Locker = lock.NewMemoryLocker()
	healthOpts := []handler.HealthOption{handler.WithEventBreaker(events.BreakerState)}
	if cfg.LockBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()

		redisLocker := lock.NewRedisLocker(rdb, cfg.LockTTL)
		if err := redisLocker.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		locker = redisLocker
		healthOpts = append(healthOpts, handler.WithLocker(redisLocker))
	}

	urls := provider.URLs{
		Callback: cfg.AppURL + "/oxipay/payment/complete",
		Complete: cfg.AppURL + "/oxipay/payment/complete",
		Cancel:   cfg.AppURL + "/oxipay/payment/cancel",
	}
	opts, err := reconcile.OptionsFromMerchant(merchant, urls)
	if err != nil {
		return err
	}

	engine, err := reconcile.NewEngine(reconcile.Deps{
		Sessions:  store,
		Catalog:   store,
		Inventory: store,
		Orders:    store,
		Notifier:  store,
		Invoices:  store,
		Cart:      store,
		Locker:    locker,
		Events:    events,
		Metrics:   m,
		Validator: config.App().Validator,
	}, opts)
	if err != nil {
		return err
	}

	rateLimiter := middle.NewRateLimiter(cfg.RateLimitPerMinute)
	defer rateLimiter.Stop()

	r := chi.NewRouter()
	router.Routes(r, router.Deps{
		Checkout:    handler.NewCheckoutHandler(engine, merchant),
		Health:      handler.NewHealthHandler(store, cfg.Environment, healthOpts...),
		Metrics:     m,
		Gatherer:    reg,
		RateLimiter: rateLimiter,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Create a context that listens for interrupt and terminate signals
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	logger.Info("Oxipay checkout service is running", logger.LogContext{
		Component: "main",
		Fields: map[string]any{
			"port":         cfg.Port,
			"lock_backend": cfg.LockBackend,
			"country":      merchant.Country,
			"test_mode":    merchant.TestMode,
			"opensearch":   osClient.IsEnabled(),
		},
	})

	select {
	case err := <-serverErr:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("Shutting down gracefully...", logger.LogContext{Component: "main"})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
