// Package corepay is the embeddable facade over the whole multi-tenant
// payment core (C1-C8): wire it up once with New, call Start to run the
// repair and queue workers in the background, and use Payments/Repairs to
// drive the primary ports. Generalizes pkg/rebound.Rebound's role as a
// single embeddable entry point wired via plain constructors (an
// alternative to the dig-based wiring in di.go).
package corepay

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/adapter/secondary/dispatchrouter"
	"github.com/ruudy-sib/corepay/adapter/secondary/httpdispatch"
	"github.com/ruudy-sib/corepay/adapter/secondary/idgen"
	"github.com/ruudy-sib/corepay/adapter/secondary/kafkadispatch"
	"github.com/ruudy-sib/corepay/adapter/secondary/pgxrepo"
	"github.com/ruudy-sib/corepay/adapter/secondary/redisqueue"
	"github.com/ruudy-sib/corepay/adapter/secondary/redisrepair"
	"github.com/ruudy-sib/corepay/core/config"
	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/fraud"
	"github.com/ruudy-sib/corepay/core/mapping"
	"github.com/ruudy-sib/corepay/core/orchestrator"
	"github.com/ruudy-sib/corepay/core/port/primary"
	"github.com/ruudy-sib/corepay/core/port/secondary"
	"github.com/ruudy-sib/corepay/core/queue"
	"github.com/ruudy-sib/corepay/core/repair"
	"github.com/ruudy-sib/corepay/core/resilience"
	"github.com/ruudy-sib/corepay/core/routing"
	"github.com/ruudy-sib/corepay/core/service"
)

// systemClock adapts time.Now to the core's narrow Clock port, the same
// shim role the teacher's worker gives a *time.Ticker over a raw interval.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Corepay is the wired-up, embeddable payment core.
type Corepay struct {
	pool        *pgxpool.Pool
	redisClient goredis.UniversalClient
	clearing    *dispatchrouter.Router

	Payments primary.PaymentService
	Repairs  primary.RepairOperator

	repairWorker *repair.Worker
	queueWorker  *queue.Worker

	healthChecks []secondary.HealthChecker

	logger *zap.Logger
}

// New wires every component and returns a ready-to-Start Corepay. bank is
// the caller's core-banking integration (spec §6 says its transport — REST
// or gRPC — is irrelevant to the core); idgen/clock let a caller substitute
// deterministic ids/time in tests, pass nil for both to use real ones.
func New(ctx context.Context, cfg *Config, bank secondary.CoreBankingAdapter, idGen secondary.IDGenerator, clock secondary.Clock) (*Corepay, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if idGen == nil {
		idGen = idgen.New()
	}

	pool, err := pgxrepo.NewPool(ctx, pgxrepo.PoolConfig{
		DSN:             cfg.PostgresDSN,
		MaxConns:        cfg.PostgresMaxConns,
		MinConns:        cfg.PostgresMinConns,
		MaxConnLifetime: cfg.PostgresMaxConnLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	redisClient, err := redisqueue.NewClient(ctx, redisqueue.ClientConfig{
		Mode:          redisqueue.RedisMode(cfg.RedisMode),
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		DB:            cfg.RedisDB,
		SentinelAddrs: cfg.RedisSentinelAddrs,
		MasterName:    cfg.RedisMasterName,
		ClusterAddrs:  cfg.RedisClusterAddrs,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	repo := pgxrepo.NewRepository(pool, logger)
	queueStore := redisqueue.NewStore(redisClient, logger)
	repairStore := redisrepair.NewStore(redisClient, logger)
	lastGoodCache := redisqueue.NewCache(redisClient, logger)

	kafkaProd := kafkadispatch.NewProducer(logger)
	httpProd := httpdispatch.NewProducer(cfg.HTTPTimeout, cfg.FraudAPIURL, logger)
	clearing := dispatchrouter.NewRouter(kafkaProd, httpProd, logger)

	resolver := config.NewResolver(repo, cfg.ConfigCacheTTL)
	metrics := resilience.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := resilience.NewDispatcher(queueStore, lastGoodCache, clock, metrics, logger)
	transformer := mapping.NewTransformer(clock, idGen, nil)
	fraudGate := fraud.NewGate(resolver, transformer, dispatcher, httpProd, noopAssessmentStore{}, idGen, clock)
	decider := routing.NewDecider(bank, repo)
	orch := orchestrator.NewOrchestrator(resolver, fraudGate, decider, dispatcher, bank, clearing, repairStore, clock)

	repairEngine := repair.NewEngine(repairStore, bank, clock, repair.Backoff{
		BaseDelay: time.Minute, Multiplier: 2, MaxDelay: 24 * time.Hour, JitterPercent: 0.1,
	}, logger)
	repairWorker := repair.NewWorker(repairEngine, cfg.RepairPollInterval, cfg.RepairBatchSize, logger)

	queueDrain := queue.NewDrain(queueStore, clearing, dispatcher, resolver, clock, queue.Backoff{
		BaseDelay: 5 * time.Second, Multiplier: 2, MaxDelay: time.Hour,
	}, cfg.QueueBatchSize, logger)
	queueWorker := queue.NewWorker(queueDrain, cfg.QueuePollInterval, cfg.QueueReclaimEvery, cfg.QueueReclaimCutoff, logger)

	paymentService := service.NewPaymentService(orch, resolver, transformer, idGen, clock)
	repairOperator := service.NewRepairOperator(repairEngine)

	return &Corepay{
		pool:        pool,
		redisClient: redisClient,
		clearing:    clearing,
		Payments:    paymentService,
		Repairs:     repairOperator,
		repairWorker: repairWorker,
		queueWorker:  queueWorker,
		healthChecks: []secondary.HealthChecker{
			pgxrepo.NewHealthCheck(pool),
			redisqueue.NewHealthCheck(redisClient, "redis"),
		},
		logger: logger,
	}, nil
}

// HealthChecks returns every liveness probe this instance registered.
func (c *Corepay) HealthChecks() []secondary.HealthChecker { return c.healthChecks }

// Start launches the repair and queued-message background loops. It
// returns immediately; both loops run until ctx is cancelled.
func (c *Corepay) Start(ctx context.Context) error {
	c.logger.Info("starting corepay background workers")
	go func() {
		if err := c.repairWorker.Run(ctx); err != nil {
			c.logger.Error("repair worker stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := c.queueWorker.Run(ctx); err != nil {
			c.logger.Error("queue worker stopped", zap.Error(err))
		}
	}()
	return nil
}

// Close releases every resource New opened.
func (c *Corepay) Close() error {
	c.logger.Info("shutting down corepay")
	var err error
	if closeErr := c.clearing.Close(); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	if closeErr := c.redisClient.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("closing redis client: %w", closeErr))
	}
	c.pool.Close()
	return err
}

// noopAssessmentStore is used when a caller has no fraud-assessment audit
// table of its own; swap in a real secondary.FraudAssessmentStore (e.g. a
// pgxrepo-backed one) via a custom wiring when persistence is required.
type noopAssessmentStore struct{}

func (noopAssessmentStore) Save(ctx context.Context, a *domain.FraudAssessment) error {
	return nil
}
