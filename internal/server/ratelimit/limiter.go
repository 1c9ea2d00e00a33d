// Package ratelimit throttles failed logins with fixed-window Redis counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config tunes the login throttle. Both the account and the client IP get
// their own counter.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Limiter counts failed logins per email and per IP. Once a counter exceeds
// MaxAttempts further logins are refused until its window expires.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: client, config: cfg}
}

func emailKey(email string) string { return "storefront:login:email:" + strings.ToLower(email) }
func ipKey(ip string) string       { return "storefront:login:ip:" + ip }

func keys(email, ip string) []string {
	k := []string{emailKey(email)}
	if ip != "" {
		k = append(k, ipKey(ip))
	}
	return k
}

// CheckLogin returns common.ErrRateLimited when the email or IP is over
// budget.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	for _, key := range keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return common.ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records one failed attempt.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	for _, key := range keys(email, ip) {
		if _, err := l.incrementWithTTL(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	if err := l.redis.Del(ctx, keys(email, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL starts with the first failure.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
