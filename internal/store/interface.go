package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value in the store.
var ErrNotFound = errors.New("entry not found")

// DurableStore is the ordered key-value log backing a room. Keys are opaque
// strings; implementations must list them in lexicographic order. The
// coordinator relies on lexicographic order matching chronological order of
// its timestamp keys.
type DurableStore interface {
	// Put persists a value under key. Overwrites are allowed but the
	// coordinator never issues them.
	Put(ctx context.Context, key string, value []byte) error

	// Get fetches the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns up to limit keys in lexicographic order, from the end
	// of the keyspace when reverse is true. limit <= 0 means no limit.
	List(ctx context.Context, limit int, reverse bool) ([]string, error)

	Close() error
}
