// Package boltcache implements the local durable fallback on bbolt: one
// bucket per list-kind, one slot per list holding the last known full
// event collection as structured text.
package boltcache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/louisbranch/daylists/internal/changelog"
	"github.com/louisbranch/daylists/internal/storage"
)

// Cache provides a bbolt-backed snapshot store.
type Cache struct {
	db *bbolt.DB
}

// Open opens a bbolt-backed cache at the provided path.
func Open(path string) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return cache, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Save stores the event collection as the list's fallback snapshot.
func (c *Cache) Save(ctx context.Context, list changelog.ListID, events []changelog.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.db == nil {
		return fmt.Errorf("cache is not configured")
	}
	if err := list.Validate(); err != nil {
		return err
	}

	payload, err := changelog.MarshalEvents(events)
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(list.Kind))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", list.Kind)
		}
		return bucket.Put([]byte(list.Key()), payload)
	})
}

// Load fetches the list's fallback snapshot. Returns storage.ErrNotFound
// when the slot is empty.
func (c *Cache) Load(ctx context.Context, list changelog.ListID) ([]changelog.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("cache is not configured")
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}

	var events []changelog.Event
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(list.Kind))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", list.Kind)
		}
		payload := bucket.Get([]byte(list.Key()))
		if payload == nil {
			return storage.ErrNotFound
		}
		parsed, err := changelog.UnmarshalEvents(payload)
		if err != nil {
			return err
		}
		events = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

func (c *Cache) ensureBuckets() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, kind := range []changelog.Kind{changelog.KindShopping, changelog.KindPlanner} {
			if _, err := tx.CreateBucketIfNotExists([]byte(kind)); err != nil {
				return fmt.Errorf("create %s bucket: %w", kind, err)
			}
		}
		return nil
	})
}
