// Package prcache implements the persistent, linearizable-per-key PR
// dedup cache described in spec.md §4.10. It is backed by a single
// go.etcd.io/bbolt file: bbolt's single-writer, MVCC-reader transaction
// model gives us atomic single-key updates and crash-safe persistence
// without standing up a client/server database, matching §6's "single
// persistent file ... schema opaque to consumers" requirement exactly.
package prcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/prbench/prbench/pkg/candidate"
)

var bucketName = []byte("pr_cache")

// Cache is the persistent dedup store. Safe for concurrent use: bbolt
// serializes writers internally, and Cache adds no additional locking.
type Cache struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures the
// cache bucket exists.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open pr cache at %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pr cache bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying file lock.
func (c *Cache) Close() error { return c.db.Close() }

// record is the on-disk JSON encoding of a candidate.CacheEntry.
type record struct {
	Status          candidate.CacheStatus `json:"status"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	FirstSeenAt     time.Time             `json:"first_seen_at"`
	LastUpdatedAt   time.Time             `json:"last_updated_at"`
}

func (c *Cache) get(tx *bbolt.Tx, key string) (*record, bool) {
	raw := tx.Bucket(bucketName).Get([]byte(key))
	if raw == nil {
		return nil, false
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func (c *Cache) put(tx *bbolt.Tx, key string, r record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketName).Put([]byte(key), raw)
}

// Get returns the current entry for key, if any.
func (c *Cache) Get(key candidate.CacheKey) (*candidate.CacheEntry, error) {
	var entry *candidate.CacheEntry
	err := c.db.View(func(tx *bbolt.Tx) error {
		r, ok := c.get(tx, key.String())
		if !ok {
			return nil
		}
		entry = &candidate.CacheEntry{
			Key:             key,
			Status:          r.Status,
			RejectionReason: r.RejectionReason,
			FirstSeenAt:     r.FirstSeenAt,
			LastUpdatedAt:   r.LastUpdatedAt,
		}
		return nil
	})
	return entry, err
}

// TryInsertSeen is the deduplication primitive: it atomically inserts a
// "seen" entry for key iff none exists yet, and reports whether the
// insert happened. The pipeline must call this, successfully, before any
// network call for deep processing — see spec.md §4.10.
func (c *Cache) TryInsertSeen(key candidate.CacheKey, now time.Time) (inserted bool, err error) {
	err = c.db.Update(func(tx *bbolt.Tx) error {
		if _, exists := c.get(tx, key.String()); exists {
			inserted = false
			return nil
		}
		inserted = true
		return c.put(tx, key.String(), record{
			Status:        candidate.StatusSeen,
			FirstSeenAt:   now,
			LastUpdatedAt: now,
		})
	})
	return inserted, err
}

// transition applies fn to the current record for key (or a zero record if
// absent) under a single bbolt write transaction, persisting synchronously.
func (c *Cache) transition(key candidate.CacheKey, now time.Time, fn func(r *record) error) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		r, ok := c.get(tx, key.String())
		if !ok {
			r = &record{FirstSeenAt: now}
		}
		if err := fn(r); err != nil {
			return err
		}
		r.LastUpdatedAt = now
		return c.put(tx, key.String(), *r)
	})
}

// MarkRejected transitions the entry to rejected with the given reason.
func (c *Cache) MarkRejected(key candidate.CacheKey, reason string, now time.Time) error {
	return c.transition(key, now, func(r *record) error {
		r.Status = candidate.StatusRejected
		r.RejectionReason = reason
		return nil
	})
}

// MarkInProgress transitions the entry to deep_in_progress.
func (c *Cache) MarkInProgress(key candidate.CacheKey, now time.Time) error {
	return c.transition(key, now, func(r *record) error {
		r.Status = candidate.StatusDeepInProgress
		return nil
	})
}

// MarkExported transitions the entry to exported.
func (c *Cache) MarkExported(key candidate.CacheKey, now time.Time) error {
	return c.transition(key, now, func(r *record) error {
		r.Status = candidate.StatusExported
		return nil
	})
}

// MarkFailed transitions the entry to failed with the given reason.
func (c *Cache) MarkFailed(key candidate.CacheKey, reason string, now time.Time) error {
	return c.transition(key, now, func(r *record) error {
		r.Status = candidate.StatusFailed
		r.RejectionReason = reason
		return nil
	})
}

// RecoverStuckInProgress resets entries that have been deep_in_progress
// for longer than grace back to seen, so a crashed prior run's candidates
// are retried. Returns the number of entries reset.
func (c *Cache) RecoverStuckInProgress(grace time.Duration, now time.Time) (int, error) {
	reset := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		cur := b.Cursor()
		type pending struct {
			key string
			r   record
		}
		var toReset []pending
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if r.Status == candidate.StatusDeepInProgress && now.Sub(r.LastUpdatedAt) > grace {
				toReset = append(toReset, pending{key: string(k), r: r})
			}
		}
		for _, p := range toReset {
			p.r.Status = candidate.StatusSeen
			p.r.LastUpdatedAt = now
			raw, err := json.Marshal(p.r)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(p.key), raw); err != nil {
				return err
			}
			reset++
		}
		return nil
	})
	if reset > 0 {
		slog.Info("recovered stuck deep_in_progress cache entries", "count", reset, "grace", grace)
	}
	return reset, err
}
