package eventlog

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var eventsBucket = []byte("events")

// Log is the durable, append-only event sequence. It is backed by a single
// bbolt bucket keyed by big-endian uint64 position, so iteration order is
// the insertion order and bbolt's single-writer transaction makes each
// Append atomic.
type Log struct {
	db *bolt.DB
}

// Open opens (creating if absent) the event bucket inside db. Callers own
// db's lifecycle; Log does not close it.
func Open(db *bolt.DB) (*Log, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	return &Log{db: db}, nil
}

// Append records payload at the next position and returns that position.
// A storage write failure here is treated as fatal by every caller in this
// repository (core/state.Engine.Apply).
func (l *Log) Append(payload Payload, ts time.Time) (uint64, error) {
	ev := Event{Timestamp: ts, Payload: payload}
	raw, err := encode(ev)
	if err != nil {
		return 0, err
	}
	var pos uint64
	err = l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		pos = uint64(b.Stats().KeyN)
		return b.Put(encodeKey(pos), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("eventlog: append: %w", err)
	}
	return pos, nil
}

// Len returns the total number of appended events.
func (l *Log) Len() (uint64, error) {
	var n uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(eventsBucket).Stats().KeyN)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("eventlog: len: %w", err)
	}
	return n, nil
}

// Iterate walks every event from genesis in position order, calling fn with
// each position and decoded event. Iteration stops at the first error
// returned by fn or by decode.
func (l *Log) Iterate(fn func(pos uint64, ev Event) error) error {
	return l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ev, err := decode(v)
			if err != nil {
				return fmt.Errorf("eventlog: iterate: corrupt entry at %d: %w", decodeKey(k), err)
			}
			if err := fn(decodeKey(k), ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// Page returns up to length events starting at start, for the public
// GetEvents query (capped at 2000 entries by the caller).
func (l *Log) Page(start, length uint64) ([]Event, uint64, error) {
	total, err := l.Len()
	if err != nil {
		return nil, 0, err
	}
	out := make([]Event, 0, length)
	err = l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		c := b.Cursor()
		k, v := c.Seek(encodeKey(start))
		for ; k != nil && uint64(len(out)) < length; k, v = c.Next() {
			ev, err := decode(v)
			if err != nil {
				return fmt.Errorf("eventlog: page: corrupt entry at %d: %w", decodeKey(k), err)
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func encodeKey(pos uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], pos)
	return k[:]
}

func decodeKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}
