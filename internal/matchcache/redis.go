package matchcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// RedisCache shares matches across instances. Each entry is a JSON string;
// per-job and per-freelancer sets index entry keys for invalidation.
type RedisCache struct {
	client *redis.Client
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, jobID uuid.UUID, freelancerID string) (*store.Match, error) {
	val, err := c.client.Get(ctx, matchKey(jobID, freelancerID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m store.Match
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, fmt.Errorf("decode cached match: %w", err)
	}
	return &m, nil
}

func (c *RedisCache) Put(ctx context.Context, m *store.Match, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	key := matchKey(m.JobID, m.FreelancerID)
	jobIdx := jobIndexKey(m.JobID)
	userIdx := freelancerIndexKey(m.FreelancerID)

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.SAdd(ctx, jobIdx, key)
		pipe.SAdd(ctx, userIdx, key)
		pipe.Expire(ctx, jobIdx, ttl)
		pipe.Expire(ctx, userIdx, ttl)
		return nil
	})
	return err
}

func (c *RedisCache) InvalidateJob(ctx context.Context, jobID uuid.UUID) error {
	return c.invalidateIndex(ctx, jobIndexKey(jobID))
}

func (c *RedisCache) InvalidateFreelancer(ctx context.Context, freelancerID string) error {
	return c.invalidateIndex(ctx, freelancerIndexKey(freelancerID))
}

// invalidateIndex deletes every entry named in the index set, then the set.
// Keys left behind in the other index point at nothing and are ignored.
func (c *RedisCache) invalidateIndex(ctx context.Context, idx string) error {
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	return c.client.Del(ctx, append(keys, idx)...).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
