package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR and PEXPIRE run in one script so a window can never lose its TTL.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

var releaseIfOwnerScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshIfOwnerScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// FixedWindowAllow counts one hit against scope and reports whether the
// window still has room. The first hit opens a window of the given length.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.rdb == nil {
		return false, 0, errNotInitialized
	}
	count, err := fixedWindowScript.Run(ctx, c.rdb, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// ReleaseIfOwner deletes key only while it still holds owner.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	if c.rdb == nil {
		return false, errNotInitialized
	}
	n, err := releaseIfOwnerScript.Run(ctx, c.rdb, []string{key}, owner).Int64()
	return n == 1, err
}

// RefreshIfOwner resets the TTL of key only while it still holds owner.
func (c *Client) RefreshIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if c.rdb == nil {
		return false, errNotInitialized
	}
	n, err := refreshIfOwnerScript.Run(ctx, c.rdb, []string{key}, owner, ttl.Milliseconds()).Int64()
	return n == 1, err
}
