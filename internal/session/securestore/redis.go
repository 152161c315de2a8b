package securestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const secretKeyPrefix = "cleanplate:secure:"

// Redis stores secrets in Redis so a session outlives the process. Values
// are kept without expiry; the identity token carries its own.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Save replaces the value stored under key.
func (r *Redis) Save(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, secretKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("save secret %s: %w", key, err)
	}
	return nil
}

// Read returns the value under key and whether it exists.
func (r *Redis) Read(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, secretKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read secret %s: %w", key, err)
	}
	return v, true, nil
}

// Delete removes key. Missing keys are not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, secretKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete secret %s: %w", key, err)
	}
	return nil
}
