// Package redisstore keeps entitlement usage counters in Redis.
//
// Every (organization, feature, window) is one hash holding the aggregate,
// the organization-level counter and one counter per workspace. Reads are
// single HGET calls; writes run a Lua script so the quota check and the
// increment happen atomically on the server. Bounded windows expire a
// retention period after they end, which keeps recent history available
// through History without unbounded growth.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	usage := redisstore.New(client, redisstore.WithKeyPrefix("usage"))
//	svc, err := entitlement.NewService(catalog, overrides, allocations, usage)
package redisstore
