package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/entitlement/mongostore"
	"github.com/dmitrymomot/entitlements/pkg/entitlement/pgstore"
	"github.com/dmitrymomot/entitlements/pkg/entitlement/redisstore"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/mongo"
	"github.com/dmitrymomot/entitlements/pkg/pg"
	"github.com/dmitrymomot/entitlements/pkg/redis"
)

const (
	backendPostgres = "postgres"
	backendRedis    = "redis"
	backendMongo    = "mongo"
)

var errUnknownBackend = errors.New("unknown usage backend")

// app holds the connections shared by commands. The engine is built on
// first use so that migrate and seed run against an empty database.
type app struct {
	log   *slog.Logger
	cfg   entitlement.Config
	pgCfg pg.Config
	pool  *pgxpool.Pool
	store *pgstore.Store

	redis *goredis.Client
	mongo *mongodriver.Client

	svc      entitlement.Service
	registry *entitlement.PlanRegistry
	tracker  *entitlement.UsageTracker
	catalog  *entitlement.Catalog

	checks map[string]func(context.Context) error
}

func newApp(ctx context.Context, log *slog.Logger) (*app, error) {
	a := &app{log: log, checks: make(map[string]func(context.Context) error)}

	if err := config.Load(&a.cfg); err != nil {
		return nil, err
	}
	if err := config.Load(&a.pgCfg); err != nil {
		return nil, err
	}

	pool, err := pg.Connect(ctx, a.pgCfg)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.store = pgstore.New(pool)
	a.checks[backendPostgres] = pg.Healthcheck(pool)

	return a, nil
}

// Close releases every open connection.
func (a *app) Close() {
	ctx := context.Background()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WarnContext(ctx, "failed to close redis client", logger.Error(err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.log.WarnContext(ctx, "failed to disconnect mongo client", logger.Error(err))
		}
	}
	a.pool.Close()
}

// engine builds the service over the configured usage backend.
func (a *app) engine(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}

	catalog, err := pgstore.LoadCatalog(ctx, a.pool)
	if err != nil {
		return err
	}

	usage, err := a.usageStore(ctx)
	if err != nil {
		return err
	}

	opts := append(a.cfg.Options(), entitlement.WithLogger(a.log))
	svc, err := entitlement.NewService(catalog, a.store, a.store, usage, opts...)
	if err != nil {
		return err
	}

	a.catalog = catalog
	a.svc = svc
	a.tracker = entitlement.NewUsageTracker(usage, nil)
	a.registry = entitlement.NewPlanRegistry(pgstore.NewPlanSource(a.pool), catalog, a.cfg.RegistryOptions()...)
	return nil
}

func (a *app) usageStore(ctx context.Context) (entitlement.UsageStore, error) {
	a.log.DebugContext(ctx, "opening usage store", logger.Backend(a.cfg.UsageBackend))

	switch a.cfg.UsageBackend {
	case backendPostgres, "":
		return a.store, nil

	case backendRedis:
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.checks[backendRedis] = redis.Healthcheck(client)
		return redisstore.New(client,
			redisstore.WithKeyPrefix(a.cfg.RedisKeyPrefix),
			redisstore.WithRetention(a.cfg.UsageRetention),
		), nil

	case backendMongo:
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg, a.cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		a.mongo = db.Client()
		a.checks[backendMongo] = mongo.Healthcheck(a.mongo)
		return mongostore.New(ctx, db, mongostore.WithRetention(a.cfg.UsageRetention))

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, a.cfg.UsageBackend)
	}
}

// organization resolves the plan and builds the engine input.
func (a *app) organization(ctx context.Context, orgID, planID string) (entitlement.Organization, error) {
	id, err := parseID("org", orgID)
	if err != nil {
		return entitlement.Organization{}, err
	}

	org := entitlement.Organization{ID: id}
	if planID == "" {
		return org, nil
	}

	plan, err := a.registry.Plan(ctx, planID)
	if err != nil {
		return entitlement.Organization{}, err
	}
	a.log.DebugContext(ctx, "plan resolved", logger.OrganizationID(id), logger.PlanID(plan.ID))
	org.Plan = plan
	return org, nil
}
