package airdrop

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"liquidneuron/amount"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "rewards.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := OpenStore(db)
	require.NoError(t, err)
	return s
}

func TestStorePutGetDelete(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Get("alice")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Put("alice", amount.R(42*amount.Scale)))
	got, found, err := s.Get("alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, amount.R(42*amount.Scale), got)

	require.NoError(t, s.Delete("alice"))
	_, found, err = s.Get("alice")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreResetReplacesContents(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("stale", amount.R(1)))

	require.NoError(t, s.Reset(map[string]amount.R{
		"alice": amount.R(10),
		"bob":   amount.R(20),
	}))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, map[string]amount.R{
		"alice": amount.R(10),
		"bob":   amount.R(20),
	}, snap)
}
