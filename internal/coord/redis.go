package coord

import (
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

// RedisStore backs the coordination store with a shared redis instance.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(key string) (string, error) {
	val, err := s.client.Get(key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return val, err
}

func (s *RedisStore) Set(key, value string, ttl time.Duration) error {
	return s.client.Set(key, value, ttl).Err()
}

func (s *RedisStore) Del(keys ...string) error {
	return s.client.Del(keys...).Err()
}

func (s *RedisStore) Incr(key string, by int64) (int64, error) {
	return s.client.IncrBy(key, by).Result()
}

func (s *RedisStore) Decr(key string, by int64) (int64, error) {
	return s.client.DecrBy(key, by).Result()
}

func (s *RedisStore) HIncr(key, field string, by int64) (int64, error) {
	return s.client.HIncrBy(key, field, by).Result()
}

func (s *RedisStore) HSet(key, field, value string) error {
	return s.client.HSet(key, field, value).Err()
}

func (s *RedisStore) HGetAll(key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (s *RedisStore) Expire(key string, ttl time.Duration) error {
	return s.client.Expire(key, ttl).Err()
}

func (s *RedisStore) Keys(pattern string) ([]string, error) {
	return s.client.Keys(pattern).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
