package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceGuard optionally makes a challenge single-use across all instances.
// Claim returns false when the nonce was already consumed.
type NonceGuard interface {
	Claim(ctx context.Context, identity, nonce string, ttl time.Duration) (bool, error)
}

// RedisNonceGuard records consumed nonces with SETNX until the challenge expires.
type RedisNonceGuard struct {
	client redis.UniversalClient
}

func NewRedisNonceGuard(client redis.UniversalClient) *RedisNonceGuard {
	return &RedisNonceGuard{client: client}
}

// NewRedisNonceGuardFromURL parses a redis:// URL and pings the server.
func NewRedisNonceGuardFromURL(ctx context.Context, url string) (*RedisNonceGuard, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisNonceGuard(client), nil
}

func (g *RedisNonceGuard) Claim(ctx context.Context, identity, nonce string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	return g.client.SetNX(ctx, "auth:nonce:"+identity+":"+nonce, 1, ttl).Result()
}

func (g *RedisNonceGuard) Close() error {
	return g.client.Close()
}
