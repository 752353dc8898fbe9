package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaamilshan/hamme/internal/config"
)

// versionTTL bounds how long an invalidation version outlives its entry.
const versionTTL = 24 * time.Hour

type RedisProfileCache struct {
	client *redis.Client
	prefix string
}

func NewRedisProfileCache(cfg config.RedisConfig, prefix string) (*RedisProfileCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisProfileCacheFromClient(client, prefix), nil
}

func NewRedisProfileCacheFromClient(client *redis.Client, prefix string) *RedisProfileCache {
	return &RedisProfileCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisProfileCache) key(userID string) string {
	return fmt.Sprintf("%s:profile:%s", c.prefix, userID)
}

func (c *RedisProfileCache) versionKey(userID string) string {
	return fmt.Sprintf("%s:profile-ver:%s", c.prefix, userID)
}

func (c *RedisProfileCache) Get(ctx context.Context, userID string) (*CachedProfile, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var p CachedProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &p, nil
}

func (c *RedisProfileCache) GetMany(ctx context.Context, userIDs []string) (map[string]*CachedProfile, error) {
	result := make(map[string]*CachedProfile, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.key(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget from redis: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p CachedProfile
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			continue
		}
		result[userIDs[i]] = &p
	}
	return result, nil
}

func (c *RedisProfileCache) Versions(ctx context.Context, userIDs []string) (map[string]int64, error) {
	result := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.versionKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget versions from redis: %w", err)
	}

	for i, v := range values {
		result[userIDs[i]] = parseVersion(v)
	}
	return result, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile *CachedProfile, version int64, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	verKey := c.versionKey(profile.ID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if parseVersion(current) != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(profile.ID), data, ttl)
			return nil
		})
		return err
	}, verKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	default:
		return fmt.Errorf("failed to set in redis: %w", err)
	}
}

// Delete drops the entries and bumps their versions in one transaction.
func (c *RedisProfileCache) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Del(ctx, c.key(id))
			pipe.Incr(ctx, c.versionKey(id))
			pipe.Expire(ctx, c.versionKey(id), versionTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Client exposes the underlying connection so other components can share it.
func (c *RedisProfileCache) Client() *redis.Client {
	return c.client
}

func (c *RedisProfileCache) Close() error {
	return c.client.Close()
}

func parseVersion(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var _ ProfileCache = (*RedisProfileCache)(nil)
