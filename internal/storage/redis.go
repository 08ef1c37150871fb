package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on go-redis. Multi-step operations run as
// pipelined transactions so concurrent request workers observe consistent
// state without any in-process locking.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions holds Redis connection configuration.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration
}

// NewRedisStore creates a Redis-backed store. OpTimeout bounds every
// round-trip; a slow store must fail the operation, not stall the request
// pipeline.
func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  opts.OpTimeout,
			ReadTimeout:  opts.OpTimeout,
			WriteTimeout: opts.OpTimeout,
		}),
	}
}

// Client exposes the underlying go-redis client for health reporting.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) WindowTake(ctx context.Context, key string, now float64, window time.Duration, member string, grace time.Duration) (int64, error) {
	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%f", now-window.Seconds()))
		card = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: now, Member: member})
		pipe.Expire(ctx, key, window+grace)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("window take for %s: %w", key, err)
	}
	return card.Val(), nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.client.Del(ctx, keys...).Result()
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string) error {
	return s.client.SAdd(ctx, key, member).Err()
}

func (s *RedisStore) SetRemove(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.SRem(ctx, key, member).Result()
	return n > 0, err
}

func (s *RedisStore) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) ListPushTrim(ctx context.Context, key, value string, cap int64, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, cap-1)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) ListLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

func (s *RedisStore) ListRemove(ctx context.Context, key, value string) (int64, error) {
	return s.client.LRem(ctx, key, 1, value).Result()
}

func (s *RedisStore) ListReplace(ctx context.Context, key string, values []string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			args := make([]interface{}, len(values))
			for i, v := range values {
				args[i] = v
			}
			pipe.RPush(ctx, key, args...)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) GetInt(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
