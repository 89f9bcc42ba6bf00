// Command corepay runs the multi-tenant payment core as a standalone
// process: it wires up Postgres/Redis/HTTP/Kafka via pkg/corepay, starts
// the repair and queued-message background loops, and serves a liveness
// endpoint, following the shape of the teacher's cmd/rebound entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/adapter/primary/httphealth"
	"github.com/ruudy-sib/corepay/adapter/secondary/corebankhttp"
	bootconfig "github.com/ruudy-sib/corepay/internal/config"
	"github.com/ruudy-sib/corepay/pkg/corepay"
)

const appName = "corepay"

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootCfg, err := bootconfig.Load()
	if err != nil {
		return fmt.Errorf("loading bootstrap config: %w", err)
	}

	logger, err := newLogger(bootCfg.Environment)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	bank := corebankhttp.NewClient(bootCfg.CoreBank.BaseURL, bootCfg.CoreBank.Timeout, logger)

	cfg := &corepay.Config{
		PostgresDSN:             bootCfg.Postgres.DSN,
		PostgresMaxConns:        bootCfg.Postgres.MaxConns,
		PostgresMinConns:        bootCfg.Postgres.MinConns,
		PostgresMaxConnLifetime: bootCfg.Postgres.MaxConnLifetime,
		RedisMode:               bootCfg.Redis.Mode,
		RedisAddr:               bootCfg.Redis.Addr,
		RedisPassword:           bootCfg.Redis.Password,
		RedisDB:                 bootCfg.Redis.DB,
		RedisMasterName:         bootCfg.Redis.MasterName,
		RedisSentinelAddrs:      bootCfg.Redis.SentinelAddrs,
		RedisClusterAddrs:       bootCfg.Redis.ClusterAddrs,
		HTTPTimeout:             bootCfg.CoreBank.Timeout,
		FraudAPIURL:             bootCfg.FraudAPIURL,
		ConfigCacheTTL:          bootCfg.ConfigCacheTTL,
		RepairPollInterval:      bootCfg.Worker.RepairPollInterval,
		RepairBatchSize:         bootCfg.Worker.RepairBatchSize,
		QueuePollInterval:       bootCfg.Worker.QueuePollInterval,
		QueueBatchSize:          bootCfg.Worker.QueueBatchSize,
		QueueReclaimEvery:       bootCfg.Worker.QueueReclaimEvery,
		QueueReclaimCutoff:      bootCfg.Worker.QueueReclaimCutoff,
		Logger:                  logger,
	}

	cp, err := corepay.New(ctx, cfg, bank, nil, nil)
	if err != nil {
		return fmt.Errorf("wiring corepay: %w", err)
	}
	defer func() {
		if err := cp.Close(); err != nil {
			logger.Error("error closing corepay", zap.Error(err))
		}
		if err := bank.Close(); err != nil {
			logger.Error("error closing core banking client", zap.Error(err))
		}
	}()

	logger.Info("starting application",
		zap.String("app", appName),
		zap.String("version", version),
		zap.String("environment", bootCfg.Environment),
		zap.String("http_addr", bootCfg.HTTPAddr),
	)

	if err := cp.Start(ctx); err != nil {
		return fmt.Errorf("starting corepay: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", httphealth.NewHandler(cp.HealthChecks()))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              bootCfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", bootCfg.HTTPAddr))
		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", srvErr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case srvErr := <-errCh:
		if srvErr != nil {
			logger.Error("service error", zap.Error(srvErr))
		}
	}

	logger.Info("shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
