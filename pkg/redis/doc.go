// Package redis connects to Redis with go-redis/v9.
//
// Config is populated from REDIS_* environment variables, Connect retries
// PING until the server is ready, and Healthcheck wraps PING for readiness
// endpoints. The returned *redis.Client is what redisstore and the
// ratelimiter Redis store expect.
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	usage := redisstore.New(client)
package redis
