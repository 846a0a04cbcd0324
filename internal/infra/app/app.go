package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/bloom"
	"github.com/arklim/realm-auth-service/internal/infra/config"
	"github.com/arklim/realm-auth-service/internal/infra/database"
	"github.com/arklim/realm-auth-service/internal/infra/geo"
	kafkainfra "github.com/arklim/realm-auth-service/internal/infra/kafka"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
	"github.com/arklim/realm-auth-service/internal/infra/notify"
	redisinfra "github.com/arklim/realm-auth-service/internal/infra/redis"
	"github.com/arklim/realm-auth-service/internal/infra/security"
	"github.com/arklim/realm-auth-service/internal/infra/telemetry"
	postgresrepo "github.com/arklim/realm-auth-service/internal/repository/postgres"
	redisrepo "github.com/arklim/realm-auth-service/internal/repository/redis"
	"github.com/arklim/realm-auth-service/internal/transport/http/handlers"
	"github.com/arklim/realm-auth-service/internal/transport/http/middleware"
	"github.com/arklim/realm-auth-service/internal/transport/http/routes"
	"github.com/arklim/realm-auth-service/internal/usecase"
)

const (
	revocationLagWarning = 30 * time.Second
	shutdownTimeout      = 10 * time.Second
)

// Application is the API process: HTTP server, realm services and their
// background loops. It is built once in main.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	tracing  *telemetry.TracerProvider
	producer *kafkainfra.Producer
	workers  *notify.WorkerPool
	consumer *kafkainfra.Consumer
	realms   map[string]*usecase.UserService
}

// New wires every component of the API from cfg.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log, realms: make(map[string]*usecase.UserService)}
	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracing, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracing = tracing

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	reporter := telemetry.NewReporter(log, metrics)

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	realmNames := cfg.Realms
	if len(realmNames) == 0 {
		realmNames = []string{"User1", "User2"}
	}
	realms := make([]domain.Realm, 0, len(realmNames))
	tables := make([]string, 0, len(realmNames))
	for _, name := range realmNames {
		realm := domain.NewRealm(name)
		realms = append(realms, realm)
		tables = append(tables, realm.Table)
	}

	if cfg.Postgres.AutoMigrate {
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		if err := postgresrepo.EnsureRealmTables(ctx, pool, tables...); err != nil {
			return fmt.Errorf("create realm tables: %w", err)
		}
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	filters, err := newFilterBank(ctx, cfg.Filters, redisClient, metrics, log)
	if err != nil {
		return err
	}

	cipher, err := security.NewAESCipher(cfg.Cache.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init cache cipher: %w", err)
	}
	tokens, err := security.NewTokenService(cfg.JWT.Secret, cfg.JWT.SessionTTL, cfg.JWT.OTPTTL)
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}
	links, err := security.NewURLTokenCodec(cfg.JWT.Secret, map[domain.TokenPurpose]time.Duration{
		domain.TokenPurposeEmailVerify:   cfg.JWT.VerifyTTL,
		domain.TokenPurposePasswordReset: cfg.JWT.ResetTTL,
	})
	if err != nil {
		return fmt.Errorf("init url token codec: %w", err)
	}
	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}
	passwords := security.DefaultPasswordValidator(filters.CompromisedPasswords)

	queue, publisher, err := a.messaging(metrics)
	if err != nil {
		return err
	}

	policy := domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Revocation.DegradationPolicy))
	log.Info("revocation checker configured",
		zap.String("degradation_policy", string(policy.Mode())),
		zap.Duration("session_ttl", tokens.SessionTTL()),
	)
	revoker := usecase.NewRevocationChecker(
		filters.BlacklistedTokens,
		redisrepo.NewRevocationRepository(redisClient.Client(), "revoked"),
		reporter,
		cfg.Cache.RevocationTTL,
		log,
	).
		WithTokenLifetime(tokens.SessionTTL()).
		WithPublisher(publisher).
		WithDegradationPolicy(policy).
		WithOutcomeCounter(metrics.RevocationChecks)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err := kafkainfra.NewConsumer(kafkainfra.ConsumerOptions{
			Brokers:    cfg.Kafka.Brokers,
			GroupID:    fmt.Sprintf("%s-revocations-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()),
			Topics:     []string{kafkainfra.TopicName(cfg.Kafka.TopicPrefix, kafkainfra.TopicTokenRevoked)},
			FromNewest: true,
		}, kafkainfra.NewRevocationConsumer(revoker, revocationLagWarning, log), log)
		if err != nil {
			return fmt.Errorf("init revocation consumer: %w", err)
		}
		a.consumer = consumer
	}

	lifecycles := make([]handlers.UserLifecycle, 0, len(realms))
	for _, realm := range realms {
		svc := usecase.NewUserService(realm, usecase.UserDependencies{
			Users:         postgresrepo.NewUserRepository(pool, realm.Table),
			Cache:         redisrepo.NewUserCache(redisClient.Client(), realm.CacheNamespace, cipher),
			Emails:        filters.RegisteredEmails,
			Hasher:        hasher,
			Passwords:     passwords,
			Tokens:        tokens,
			Links:         links,
			Revocations:   revoker,
			Notifications: queue,
			Reporter:      reporter,
			Countries:     geo.CountryName,
		}, cfg.App.BaseURL, cfg.Cache.UserTTL, log).
			WithLookupCounter(metrics.CacheLookups)
		a.realms[realm.Name] = svc
		lifecycles = append(lifecycles, svc)
	}

	rateLimiter := middleware.NewRateLimiter(
		redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.RateLimit.KeyPrefix,
			TTL:       2 * cfg.RateLimit.Window,
		}),
		log,
	).WithOffenderFilter(filters.SuspiciousIPs)

	a.engine = routes.Register(routes.Dependencies{
		Config:        cfg,
		Logger:        log,
		Tracer:        otel.Tracer("github.com/arklim/realm-auth-service/internal/transport/http"),
		Realms:        lifecycles,
		Sessions:      tokens,
		Revocations:   revoker,
		RateLimiter:   rateLimiter,
		HTTPMetrics:   httpMetrics,
		SuspiciousIPs: filters.SuspiciousIPs,
		Suspicious:    metrics.SuspiciousRequests,
		Reporter:      reporter,
		Filters:       filters,
		Database:      pool,
		Cache:         redisClient,
		Gatherer:      registry,
	})

	return nil
}

// messaging selects Kafka for notification jobs and revocation fan-out when
// brokers are configured, and in-process fallbacks otherwise.
func (a *Application) messaging(metrics *telemetry.Metrics) (port.NotificationQueue, port.RevocationPublisher, error) {
	cfg, log := a.cfg, a.logger

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.producer = producer
		publisher := kafkainfra.NewEventPublisher(producer, cfg.App, log)
		log.Info("kafka messaging enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
		return publisher, publisher, nil
	}

	dispatcher := notify.NewDispatcher(
		notify.NewLogSender("email", log),
		notify.NewLogSender("sms", log),
		metrics.Notifications,
		log,
	)
	a.workers = notify.NewWorkerPool(dispatcher, cfg.Notifications.Workers, cfg.Notifications.QueueSize, log)
	log.Info("kafka brokers not configured, delivering notifications in process")
	return a.workers, kafkainfra.NewStubPublisher(log), nil
}

func newFilterBank(ctx context.Context, cfg config.FilterSettings, redisClient *redisinfra.Client, metrics *telemetry.Metrics, log *zap.Logger) (*bloom.Bank, error) {
	var store port.FilterSnapshotStore
	switch cfg.SnapshotBackend {
	case "redis":
		store = redisrepo.NewFilterSnapshotRepository(redisClient.Client(), cfg.SnapshotKeyPrefix)
	default:
		fileStore, err := bloom.NewFileSnapshotStore(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("init filter snapshot dir: %w", err)
		}
		store = fileStore
	}

	bank, err := bloom.NewBank(ctx, cfg, store, log, bloom.WithAddHook(func(name string) {
		metrics.FilterAdds.WithLabelValues(name).Inc()
	}))
	if err != nil {
		return nil, fmt.Errorf("init filter bank: %w", err)
	}

	if cfg.CompromisedPasswordsSeed != "" {
		n, err := bloom.SeedFromFile(ctx, bank.CompromisedPasswords, cfg.CompromisedPasswordsSeed)
		if err != nil {
			return nil, fmt.Errorf("seed compromised passwords: %w", err)
		}
		log.Info("compromised password filter seeded", zap.Int("entries", n))
	}
	return bank, nil
}

// Realm returns the lifecycle service of the named realm.
func (a *Application) Realm(name string) (*usecase.UserService, bool) {
	svc, ok := a.realms[name]
	return svc, ok
}

// Run serves HTTP until ctx is cancelled, then drains background work.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.workers != nil {
		a.workers.Start(runCtx)
	}

	errCh := make(chan error, 2)
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("revocation consumer: %w", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.Int("realms", len(a.realms)),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *Application) close() {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.workers != nil {
		a.workers.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracing != nil {
		_ = a.tracing.Shutdown(context.Background())
	}
	_ = a.logger.Sync()
}
