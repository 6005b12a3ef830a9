package store

import "errors"

// ErrNotImplemented is returned by backends that cannot serve an operation.
var ErrNotImplemented = errors.New("not implemented")

type WriteOptions struct {
	ContentType string
	TTL         int64
}

type Store interface {
	GetInternalStore() interface{}

	// Get returns nil, nil for a missing key
	Get(key string) ([]byte, error)
	Set(key string, value []byte, options *WriteOptions) error

	// IncrBy atomically adds delta to the number stored at key and returns the result.
	IncrBy(key string, delta float64) (float64, error)

	Delete(key string) error
	DeleteAll(prefix string) error

	Exists(key string) (bool, error)
	Expire(key string, ttl int64) error

	// Scan calls fn for every key starting with prefix.
	Scan(prefix string, skip int, limit int, fn func(key string, val []byte)) error
	Count(prefix string) int

	Close() error
}
