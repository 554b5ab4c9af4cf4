package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore is a BoltDB-backed durable store. One bucket per room; the
// bucket's native key ordering provides List.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenBolt opens a BoltDB-backed store at path, scoped to the given room.
func OpenBolt(path, room string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if strings.TrimSpace(room) == "" {
		return nil, fmt.Errorf("room name is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	s := &BoltStore{db: db, bucket: []byte(room)}
	if err := s.ensureBucket(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *BoltStore) ensureBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return fmt.Errorf("create room bucket: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("entry key is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("room bucket is missing")
		}
		return bucket.Put([]byte(key), value)
	})
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("room bucket is missing")
		}
		payload := bucket.Get([]byte(key))
		if payload == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), payload...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

func (s *BoltStore) List(ctx context.Context, limit int, reverse bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("room bucket is missing")
		}

		c := bucket.Cursor()
		next := c.Next
		k, _ := c.First()
		if reverse {
			next = c.Prev
			k, _ = c.Last()
		}

		for ; k != nil; k, _ = next() {
			keys = append(keys, string(k))
			if limit > 0 && len(keys) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
