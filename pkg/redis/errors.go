package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("redis.errors.empty_connection_url")
	ErrFailedToParseRedisConnString = errors.New("redis.errors.invalid_connection_url")
	ErrRedisNotReady                = errors.New("redis.errors.not_ready")
	ErrHealthcheckFailed            = errors.New("redis.errors.healthcheck_failed")
)
