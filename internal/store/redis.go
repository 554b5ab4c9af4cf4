package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the room log in Redis for deployments where the
// coordinator host has no durable disk. Values live in a hash; key order is
// maintained in a sorted set used lexicographically (all members scored 0),
// which gives List its reverse-range primitive.
type RedisStore struct {
	client   *redis.Client
	indexKey string
	valueKey string
}

type RedisOptions struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// OpenRedis connects to Redis and scopes all keys to the given room.
func OpenRedis(opts RedisOptions, room string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "roomcast"
	}

	return &RedisStore{
		client:   client,
		indexKey: fmt.Sprintf("%s:%s:index", prefix, room),
		valueKey: fmt.Sprintf("%s:%s:entries", prefix, room),
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("entry key is required")
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: 0, Member: key})
	pipe.HSet(ctx, s.valueKey, key, value)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.valueKey, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return data, nil
}

func (s *RedisStore) List(ctx context.Context, limit int, reverse bool) ([]string, error) {
	rangeBy := &redis.ZRangeBy{Min: "-", Max: "+"}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}

	var cmd *redis.StringSliceCmd
	if reverse {
		cmd = s.client.ZRevRangeByLex(ctx, s.indexKey, rangeBy)
	} else {
		cmd = s.client.ZRangeByLex(ctx, s.indexKey, rangeBy)
	}

	keys, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entry keys: %w", err)
	}
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
