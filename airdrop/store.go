package airdrop

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"liquidneuron/amount"
)

var rewardsBucket = []byte("airdrop")

// Store is the durable principal -> pending R map. The event log remains
// the source of truth: the bucket is rewritten from the replayed
// projection on startup, then written through on every entitlement change,
// so operators can inspect pending rewards without replaying the log.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if absent) the rewards bucket inside db.
// Callers own db's lifecycle; Store does not close it.
func OpenStore(db *bolt.DB) (*Store, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rewardsBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("airdrop: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Put records principal's pending balance.
func (s *Store) Put(principal string, balance amount.R) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(balance))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rewardsBucket).Put([]byte(principal), buf[:])
	})
	if err != nil {
		return fmt.Errorf("airdrop: store put: %w", err)
	}
	return nil
}

// Delete removes principal's entry, if any.
func (s *Store) Delete(principal string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rewardsBucket).Delete([]byte(principal))
	})
	if err != nil {
		return fmt.Errorf("airdrop: store delete: %w", err)
	}
	return nil
}

// Get reads principal's pending balance, reporting whether an entry exists.
func (s *Store) Get(principal string) (amount.R, bool, error) {
	var balance amount.R
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(rewardsBucket).Get([]byte(principal))
		if raw == nil {
			return nil
		}
		if len(raw) != 8 {
			return fmt.Errorf("airdrop: corrupt entry for %q (%d bytes)", principal, len(raw))
		}
		balance = amount.R(binary.BigEndian.Uint64(raw))
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return balance, found, nil
}

// Snapshot reads the whole map.
func (s *Store) Snapshot() (map[string]amount.R, error) {
	out := make(map[string]amount.R)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rewardsBucket).ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("airdrop: corrupt entry for %q (%d bytes)", k, len(v))
			}
			out[string(k)] = amount.R(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reset replaces the bucket's contents with entries, dropping anything no
// longer present. Used on startup to reconcile the bucket with the
// replayed projection.
func (s *Store) Reset(entries map[string]amount.R) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(rewardsBucket); err != nil {
			return err
		}
		b, err := tx.CreateBucket(rewardsBucket)
		if err != nil {
			return err
		}
		for principal, balance := range entries {
			// bbolt keeps a reference to the value until the transaction
			// commits, so every entry needs its own buffer.
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(balance))
			if err := b.Put([]byte(principal), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("airdrop: store reset: %w", err)
	}
	return nil
}
