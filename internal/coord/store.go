package coord

import (
	"errors"
	"time"
)

// ErrNotFound reports a missing key. Both implementations return exactly
// this so callers never need to know which backend is live.
var ErrNotFound = errors.New("coord: key not found")

// Store is the shared state nodes coordinate through: room placements,
// per-node load counters, redirect markers and ban records. Backed by redis
// in a cluster, by process memory when running a single node.
type Store interface {
	Get(key string) (string, error)
	Set(key string, value string, ttl time.Duration) error
	Del(keys ...string) error

	Incr(key string, by int64) (int64, error)
	Decr(key string, by int64) (int64, error)

	HIncr(key, field string, by int64) (int64, error)
	HSet(key, field, value string) error
	HGetAll(key string) (map[string]string, error)

	Expire(key string, ttl time.Duration) error
	Keys(pattern string) ([]string, error)

	Close() error
}
