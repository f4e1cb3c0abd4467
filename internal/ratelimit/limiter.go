// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// fixed window algorithm. Each user action (showing interest, querying
// groups or feeds) is throttled per user id.
package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:interest:", "rl:query:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleInterest allows 30 "show interest" actions per minute per user.
	RuleInterest = Rule{Key: "rl:interest:", Limit: 30, Window: 1 * time.Minute}

	// RuleQuery allows 60 score/group/feed queries per minute per caller.
	RuleQuery = Rule{Key: "rl:query:", Limit: 60, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow counts one action for identifier under rule and reports whether it
// is still within the limit. The counter and its expiry are set in a single
// pipelined round trip; EXPIRE NX keeps the window from sliding.
//
// On Redis errors Allow fails open (returns true) so that a Redis outage
// does not block legitimate users.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[ratelimit] redis error key=%s: %v (failing open)", key, err)
		return true, err
	}

	return incr.Val() <= int64(rule.Limit), nil
}

// Remaining returns how many actions identifier has left in the current
// window. Returns the full limit when no window is open, and on Redis
// errors (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	return max(rule.Limit-count, 0), nil
}
