// Package app builds the service graph shared by the API server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	groupHandler "raceday/internal/group/handler"
	groupService "raceday/internal/group/service"
	httpapi "raceday/internal/http"
	inviteHandler "raceday/internal/invite/handler"
	inviteService "raceday/internal/invite/service"
	jwttoken "raceday/internal/jwt_token"
	"raceday/internal/platform/config"
	"raceday/internal/platform/email"
	platformMetrics "raceday/internal/platform/metrics"
	"raceday/internal/platform/outbox"
	"raceday/internal/platform/postgres"
	platformRedis "raceday/internal/platform/redis"
	"raceday/internal/platform/revalidate"
	"raceday/internal/ratelimit/store/bucket"
	registrationHandler "raceday/internal/registration/handler"
	"raceday/internal/registration/hold"
	registrationMetrics "raceday/internal/registration/metrics"
	"raceday/internal/registration/ports"
	registrationService "raceday/internal/registration/service"
	"raceday/internal/registration/store"
)

const topicPartitions = 3

// App holds the wired services and the resources that must be released on shutdown.
type App struct {
	Config        config.Server
	Logger        *slog.Logger
	HTTPMetrics   *platformMetrics.Metrics
	Metrics       *registrationMetrics.Metrics
	Registrations *registrationService.Service
	Groups        *groupService.Service
	Invites       *inviteService.Service
	// Relay is nil unless both Postgres and Kafka are configured.
	Relay *outbox.Relay

	db       *sql.DB
	redis    *platformRedis.Client
	kafka    *kgo.Client
	gatherer prometheus.Gatherer
	checks   map[string]httpapi.HealthCheck
}

// Option tunes Build.
type Option func(*buildOptions)

type buildOptions struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	memory     *store.InMemoryStore
	mailer     ports.Mailer
}

// WithRegistry registers collectors on reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *buildOptions) {
		o.registerer = reg
		o.gatherer = reg
	}
}

// WithMemoryStore runs on st when DATABASE_URL is unset, so callers can seed events.
func WithMemoryStore(st *store.InMemoryStore) Option {
	return func(o *buildOptions) {
		o.memory = st
	}
}

// WithMailer replaces the configured mailer.
func WithMailer(m ports.Mailer) Option {
	return func(o *buildOptions) {
		o.mailer = m
	}
}

// Build connects every configured backend and wires the services. Postgres is optional
// for local development: without DATABASE_URL the services run on the in-memory store.
func Build(ctx context.Context, cfg config.Server, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	o := buildOptions{registerer: prometheus.DefaultRegisterer, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		HTTPMetrics: platformMetrics.NewWith(o.registerer),
		Metrics:     registrationMetrics.NewWith(o.registerer),
		gatherer:    o.gatherer,
		checks:      make(map[string]httpapi.HealthCheck),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	policy, err := hold.LoadPolicy(cfg.HoldPolicyFile)
	if err != nil {
		return nil, err
	}

	tx, err := a.openStore(ctx, cfg, o.memory)
	if err != nil {
		return nil, err
	}

	var (
		limiter     inviteService.Limiter = bucket.NewInMemoryBucketStore()
		revalidator ports.Revalidator     = revalidate.Noop{}
	)
	if a.redis, err = platformRedis.New(ctx, cfg.RedisURL); err != nil {
		return nil, err
	}
	if a.redis != nil {
		limiter = bucket.NewFallbackBucketStore(bucket.NewRedisBucketStore(a.redis.Client), logger)
		revalidator = revalidate.NewRedisRevalidator(a.redis.Client, a.HTTPMetrics)
		a.checks["redis"] = a.redis.Health
	} else {
		logger.Warn("REDIS_URL not set; rate limits are per instance and revalidation is disabled")
	}

	var mailer ports.Mailer = email.NewLogMailer(logger)
	if a.db != nil {
		mailer = email.NewOutboxMailer(a.db)
		if err := a.openRelay(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if o.mailer != nil {
		mailer = o.mailer
	}

	hasher, err := inviteService.NewTokenHasher(cfg.InviteTokenPepper)
	if err != nil {
		return nil, err
	}

	a.Registrations = registrationService.New(tx,
		registrationService.WithLogger(logger),
		registrationService.WithMetrics(a.Metrics),
		registrationService.WithHoldPolicy(policy),
		registrationService.WithPaymentsEnabled(cfg.PaymentsEnabled),
		registrationService.WithMailer(mailer),
		registrationService.WithRevalidator(revalidator),
	)
	a.Groups = groupService.New(tx,
		groupService.WithLogger(logger),
		groupService.WithMetrics(a.Metrics),
		groupService.WithHoldPolicy(policy),
		groupService.WithPaymentsEnabled(cfg.PaymentsEnabled),
		groupService.WithSystemBuyerEmail(cfg.SystemBuyerEmail),
		groupService.WithRevalidator(revalidator),
	)
	a.Invites = inviteService.New(tx, hasher,
		inviteService.WithLogger(logger),
		inviteService.WithMetrics(a.Metrics),
		inviteService.WithLimiter(limiter),
		inviteService.WithInviteTTL(cfg.InviteTTL),
		inviteService.WithMailer(mailer),
		inviteService.WithRevalidator(revalidator),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Server, memory *store.InMemoryStore) (ports.TxRunner, error) {
	if cfg.DatabaseURL == "" {
		if memory == nil {
			a.Logger.Warn("DATABASE_URL not set; using the in-memory store")
			memory = store.NewInMemoryStore()
		}
		return store.NewMemoryTx(memory), nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{})
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := postgres.ApplySchema(ctx, db); err != nil {
		return nil, err
	}
	a.checks["postgres"] = db.PingContext
	return store.NewPostgresTx(db, store.NewPostgres(db), cfg.TxTimeout), nil
}

func (a *App) openRelay(ctx context.Context, cfg config.Server) error {
	if len(cfg.KafkaBrokers) == 0 {
		a.Logger.Warn("KAFKA_BROKERS not set; outbox rows accumulate until a relay runs")
		return nil
	}

	client, err := outbox.NewKafkaClient(ctx, cfg.KafkaBrokers)
	if err != nil {
		return err
	}
	a.kafka = client
	if err := outbox.EnsureTopics(ctx, client, topicPartitions, cfg.AuditTopic, cfg.EmailTopic); err != nil {
		return err
	}
	a.Relay = outbox.NewRelay(a.db, client,
		map[outbox.Kind]string{
			outbox.KindAudit: cfg.AuditTopic,
			outbox.KindEmail: cfg.EmailTopic,
		},
		outbox.WithLogger(a.Logger),
		outbox.WithMetrics(a.HTTPMetrics),
	)
	a.checks["kafka"] = client.Ping
	return nil
}

// Router mounts every handler behind the shared middleware chain.
func (a *App) Router() http.Handler {
	jwtService := jwttoken.NewJWTService(a.Config.JWTSigningKey, a.Config.JWTIssuer, a.Config.JWTAudience)
	registrations := registrationHandler.New(a.Registrations, a.Logger)

	return httpapi.NewRouter(httpapi.Deps{
		Logger:       a.Logger,
		Metrics:      a.HTTPMetrics,
		Validator:    jwttoken.NewJWTServiceAdapter(jwtService),
		Gatherer:     a.gatherer,
		HealthChecks: a.checks,
		Public:       []httpapi.PublicMounter{registrations},
		Protected: []httpapi.Mounter{
			registrations,
			inviteHandler.New(a.Invites, a.Logger),
		},
		ProtectedRaw: []httpapi.Mounter{groupHandler.New(a.Groups, a.Logger)},
	})
}

// Close releases the backends opened by Build.
func (a *App) Close() error {
	var errs []error
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}
