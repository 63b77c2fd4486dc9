package prcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/candidate"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTryInsertSeenIsDedup(t *testing.T) {
	c := openTestCache(t)
	key := candidate.CacheKey{Owner: "acme", Name: "foo", Number: 42}
	now := time.Now()

	inserted, err := c.TryInsertSeen(key, now)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = c.TryInsertSeen(key, now)
	require.NoError(t, err)
	require.False(t, inserted, "second insert of the same key must be a no-op")
}

func TestLifecycleTransitions(t *testing.T) {
	c := openTestCache(t)
	key := candidate.CacheKey{Owner: "acme", Name: "foo", Number: 1}
	now := time.Now()

	_, err := c.TryInsertSeen(key, now)
	require.NoError(t, err)

	require.NoError(t, c.MarkInProgress(key, now))
	entry, err := c.Get(key)
	require.NoError(t, err)
	require.Equal(t, candidate.StatusDeepInProgress, entry.Status)

	require.NoError(t, c.MarkExported(key, now))
	entry, err = c.Get(key)
	require.NoError(t, err)
	require.Equal(t, candidate.StatusExported, entry.Status)
}

func TestRecoverStuckInProgress(t *testing.T) {
	c := openTestCache(t)
	key := candidate.CacheKey{Owner: "acme", Name: "foo", Number: 7}
	old := time.Now().Add(-2 * time.Hour)

	_, err := c.TryInsertSeen(key, old)
	require.NoError(t, err)
	require.NoError(t, c.MarkInProgress(key, old))

	n, err := c.RecoverStuckInProgress(30*time.Minute, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	entry, err := c.Get(key)
	require.NoError(t, err)
	require.Equal(t, candidate.StatusSeen, entry.Status, "stuck deep_in_progress resets to seen")
}

func TestMarkRejectedRecordsReason(t *testing.T) {
	c := openTestCache(t)
	key := candidate.CacheKey{Owner: "acme", Name: "foo", Number: 99}
	now := time.Now()

	_, err := c.TryInsertSeen(key, now)
	require.NoError(t, err)
	require.NoError(t, c.MarkRejected(key, "bot_author", now))

	entry, err := c.Get(key)
	require.NoError(t, err)
	require.Equal(t, candidate.StatusRejected, entry.Status)
	require.Equal(t, "bot_author", entry.RejectionReason)
}
