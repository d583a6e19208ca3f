package redisstore

import "github.com/redis/go-redis/v9"

// Hash layout of one window: "total" holds the aggregate, "org" the
// organization-level counter, "ws:<uuid>" one workspace each, plus
// "created_at" and "updated_at" in unix milliseconds.
//
// KEYS[1] window hash, KEYS[2] window index (sorted set).

// incrementScript adds ARGV[2] to field ARGV[1] unless the checked usage
// would exceed ARGV[3]. The checked usage is "total" for the "org" field and
// the field itself for workspaces. A negative limit skips the check.
// ARGV[4] now ms, ARGV[5] expire-at seconds (0 keeps the key), ARGV[6] index
// member, ARGV[7] index score, ARGV[8] index cutoff: members scored below it
// belong to expired windows and are dropped (0 keeps them). Returns
// {usage, accepted}.
var incrementScript = redis.NewScript(`
local field = ARGV[1]
local amount = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local current
if field == 'org' then
	current = tonumber(redis.call('HGET', KEYS[1], 'total') or '0')
else
	current = tonumber(redis.call('HGET', KEYS[1], field) or '0')
end

if limit >= 0 and current + amount > limit then
	return {current, 0}
end

redis.call('HINCRBY', KEYS[1], field, amount)
redis.call('HINCRBY', KEYS[1], 'total', amount)
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[4])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[4])
if tonumber(ARGV[5]) > 0 then
	redis.call('EXPIREAT', KEYS[1], ARGV[5])
end
redis.call('ZADD', KEYS[2], ARGV[7], ARGV[6])
if tonumber(ARGV[8]) > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[8])
end

return {current + amount, 1}
`)

// decrementScript subtracts up to ARGV[2] from field ARGV[1], never below
// zero, and returns the usage the key reads afterwards. ARGV[3] now ms.
var decrementScript = redis.NewScript(`
local field = ARGV[1]
local current = tonumber(redis.call('HGET', KEYS[1], field) or '0')
local dec = math.min(current, tonumber(ARGV[2]))

if dec > 0 then
	redis.call('HINCRBY', KEYS[1], field, -dec)
	redis.call('HINCRBY', KEYS[1], 'total', -dec)
	redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
end

if field == 'org' then
	return tonumber(redis.call('HGET', KEYS[1], 'total') or '0')
end
return current - dec
`)

// initScript creates field ARGV[1] with zero usage if missing and returns
// {usage, created_at, updated_at}. ARGV[2..6] as ARGV[4..8] of incrementScript.
var initScript = redis.NewScript(`
local field = ARGV[1]

redis.call('HSETNX', KEYS[1], field, 0)
redis.call('HSETNX', KEYS[1], 'total', 0)
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[2])
redis.call('HSETNX', KEYS[1], 'updated_at', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('EXPIREAT', KEYS[1], ARGV[3])
end
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[4])
if tonumber(ARGV[6]) > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[6])
end

return {
	tonumber(redis.call('HGET', KEYS[1], field)),
	tonumber(redis.call('HGET', KEYS[1], 'created_at')),
	tonumber(redis.call('HGET', KEYS[1], 'updated_at')),
}
`)
