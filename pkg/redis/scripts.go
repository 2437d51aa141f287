package redis

import goredis "github.com/redis/go-redis/v9"

// ARGV[1] is the window in milliseconds.
var incrWindow = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// ARGV[1] is the owner token written by SETNX.
var releaseOwned = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ARGV[1] is the expected current value, ARGV[2] the replacement and ARGV[3]
// its ttl in milliseconds.
var swapIfEqual = goredis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)
