package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/coinwallet/internal/api"
	"github.com/ayo6706/coinwallet/internal/api/middleware"
	"github.com/ayo6706/coinwallet/internal/config"
	"github.com/ayo6706/coinwallet/internal/db"
	"github.com/ayo6706/coinwallet/internal/gateway"
	"github.com/ayo6706/coinwallet/internal/idempotency"
	"github.com/ayo6706/coinwallet/internal/observability"
	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/ayo6706/coinwallet/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	st := store.NewPostgres(pool)
	idemStore := idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
	notifier := service.LogNotifier{}
	rail := gateway.NewMockRail()

	ledgerSvc := service.NewLedgerService(st, notifier)
	accountSvc := service.NewAccountService(st)
	rewardSvc := service.NewRewardService(st, cfg.Rewards, notifier)
	kycSvc := service.NewKYCService(st)
	withdrawalSvc := service.NewWithdrawalService(st, rail, notifier, cfg.WithdrawalMinimum, cfg.CoinPayoutRate, cfg.PayoutCurrency)
	resolverSvc := service.NewResolverService(st)
	webhookSvc := service.NewWebhookService(rewardSvc, withdrawalSvc, cfg.WebhookHMACKey, cfg.WebhookSkipSignature)
	conservationSvc := service.NewConservationService(st)

	payoutWorker := worker.NewPayoutWorker(withdrawalSvc).
		WithPollInterval(cfg.PayoutPollInterval).
		WithBatchSize(cfg.PayoutBatchSize).
		WithStaleWindow(cfg.PayoutStaleWindow)
	stopPayout := payoutWorker.Run(ctx)
	logger.Info("payout worker started",
		zap.Duration("interval", cfg.PayoutPollInterval),
		zap.Int("batch", cfg.PayoutBatchSize),
	)

	conservationWorker := worker.NewConservationWorker(conservationSvc).
		WithInterval(cfg.ConservationInterval)
	stopConservation := conservationWorker.Run(ctx)
	logger.Info("conservation worker started", zap.Duration("interval", cfg.ConservationInterval))

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, api.Services{
		Accounts:     accountSvc,
		Ledger:       ledgerSvc,
		Rewards:      rewardSvc,
		KYC:          kycSvc,
		Withdrawals:  withdrawalSvc,
		Resolver:     resolverSvc,
		Webhooks:     webhookSvc,
		Conservation: conservationSvc,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopPayout()
	stopConservation()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
