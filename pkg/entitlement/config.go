package entitlement

import "time"

// Config holds engine settings loaded from the environment.
type Config struct {
	UsageBackend        string        `env:"ENTITLEMENTS_USAGE_BACKEND" envDefault:"postgres"`      // UsageBackend is where usage counters live: postgres, redis or mongo.
	PlanCacheTTL        time.Duration `env:"ENTITLEMENTS_PLAN_CACHE_TTL" envDefault:"5m"`           // PlanCacheTTL is how long loaded plans are cached.
	PlanCacheSize       int           `env:"ENTITLEMENTS_PLAN_CACHE_SIZE" envDefault:"256"`         // PlanCacheSize caps the number of cached plans.
	SummaryConcurrency  int           `env:"ENTITLEMENTS_SUMMARY_CONCURRENCY" envDefault:"4"`       // SummaryConcurrency caps parallel feature evaluation in usage summaries.
	DefaultAPIRateLimit int           `env:"ENTITLEMENTS_DEFAULT_API_RATE_LIMIT" envDefault:"60"`   // DefaultAPIRateLimit is the per-minute request budget without a plan.
	RedisKeyPrefix      string        `env:"ENTITLEMENTS_REDIS_KEY_PREFIX" envDefault:"usage"`      // RedisKeyPrefix prefixes Redis usage keys.
	UsageRetention      time.Duration `env:"ENTITLEMENTS_USAGE_RETENTION" envDefault:"2160h"`       // UsageRetention keeps finished windows in Redis and MongoDB for history.
	MongoDatabase       string        `env:"ENTITLEMENTS_MONGO_DATABASE" envDefault:"entitlements"` // MongoDatabase is the database holding usage documents.
}

// Options translates the config into service options.
func (c Config) Options() []Option {
	return []Option{WithSummaryConcurrency(c.SummaryConcurrency)}
}

// RegistryOptions translates the config into plan registry options.
func (c Config) RegistryOptions() []RegistryOption {
	return []RegistryOption{
		WithPlanCacheTTL(c.PlanCacheTTL),
		WithPlanCacheSize(c.PlanCacheSize),
	}
}
