package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sigforge/sigforge/config"
	"github.com/sigforge/sigforge/contexthelper"
	"github.com/sigforge/sigforge/internal/jose"
)

const jwkCacheDuration = time.Hour

type RedisStorage struct {
	cfg    config.Config
	client *redis.Client
}

func NewRedisStorage(cfg config.Config) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	return &RedisStorage{
		cfg:    cfg,
		client: client,
	}, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value string, expiry time.Duration) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	return r.client.Set(ctx, key, value, expiry).Err()
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	if contexthelper.CheckCancellation(ctx) != nil {
		return "", ctx.Err()
	}
	return r.client.Get(ctx, key).Result()
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	return r.client.Del(ctx, key).Err()
}

// SetJWKCacheItem caches a key's public JWK so verification does not
// hit Postgres on every call.
func (r *RedisStorage) SetJWKCacheItem(ctx context.Context, keyID string, jwk jose.JWK) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	jwkJSON, err := json.Marshal(jwk)
	if err != nil {
		return fmt.Errorf("fail to serialize jwk cache item to json, err: %w", err)
	}
	return r.client.Set(ctx, jwkCacheKey(keyID), string(jwkJSON), jwkCacheDuration).Err()
}

// GetJWKCacheItem returns a cached JWK by key id.
func (r *RedisStorage) GetJWKCacheItem(ctx context.Context, keyID string) (*jose.JWK, error) {
	if contexthelper.CheckCancellation(ctx) != nil {
		return nil, ctx.Err()
	}
	jwkJSON, err := r.client.Get(ctx, jwkCacheKey(keyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fail to get jwk cache item, err: %w", err)
	}
	var jwk jose.JWK
	if err := json.Unmarshal([]byte(jwkJSON), &jwk); err != nil {
		return nil, fmt.Errorf("fail to deserialize jwk cache item, err: %w", err)
	}
	return &jwk, nil
}

// DeleteJWKCacheItem drops a cached JWK, for key deletion.
func (r *RedisStorage) DeleteJWKCacheItem(ctx context.Context, keyID string) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	return r.client.Del(ctx, jwkCacheKey(keyID)).Err()
}

func jwkCacheKey(keyID string) string {
	return fmt.Sprintf("jwk-%s", keyID)
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
