// Package ratelimit throttles failed logins per account using fixed-window
// counters in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/authgateway/internal/common"
)

// ErrRedisUnavailable wraps any error coming from the Redis client.
var ErrRedisUnavailable = errors.New("redis unavailable")

const keyPrefix = "authgw:login:"

// LoginLimiter counts failed login attempts per e-mail. After MaxAttempts
// failures inside Window further attempts are refused until the window
// expires.
type LoginLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

func NewLoginLimiter(client redis.UniversalClient, maxAttempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{redis: client, maxAttempts: maxAttempts, window: window}
}

// Check returns common.ErrRateLimited when the failure budget for email is
// used up.
func (l *LoginLimiter) Check(ctx context.Context, email string) error {
	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.maxAttempts) {
		return common.ErrRateLimited
	}
	return nil
}

// Fail records a failed attempt. The window starts on the first failure.
func (l *LoginLimiter) Fail(ctx context.Context, email string) error {
	key := loginKey(email)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func loginKey(email string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Noop never throttles. It is used when no Redis address is configured.
type Noop struct{}

func (Noop) Check(context.Context, string) error { return nil }
func (Noop) Fail(context.Context, string) error  { return nil }
func (Noop) Reset(context.Context, string) error { return nil }
