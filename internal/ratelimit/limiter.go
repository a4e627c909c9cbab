package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limiter is a fixed-window counter shared by every process through Redis.
// A nil client or a Redis error lets the request through.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{Client: client, Prefix: "ratelimit:", Limit: limit, Window: window}
}

// hitScript increments the window counter and arms its expiry in one step.
// A counter found without a TTL gets one, so a lost expiry cannot lock a
// key forever.
var hitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if redis.call("PTTL", KEYS[1]) < 0 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

// Allow counts one hit for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, action, key string) bool {
	if l == nil || l.Client == nil || l.Limit <= 0 {
		return true
	}
	k := fmt.Sprintf("%s%s:%s", l.Prefix, action, key)
	count, err := hitScript.Run(ctx, l.Client, []string{k}, l.Window.Milliseconds()).Int64()
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("rate limit check failed")
		return true
	}
	return count <= int64(l.Limit)
}
