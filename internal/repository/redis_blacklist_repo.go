package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist implements domain.TokenBlacklist on Redis. Each revoked jti
// becomes a key with a TTL equal to the token's remaining lifetime, so
// expired entries clean themselves up and no purge sweep is needed.
type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("auth:blacklist:%s", jti)
}

// Revoke marks jti as revoked until expiresAt. A token already past its
// expiry needs no entry at all.
func (r *RedisBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, blacklistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token %s: %w", jti, err)
	}
	return nil
}

// IsRevoked reports whether an unexpired revocation entry exists for jti.
func (r *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}
