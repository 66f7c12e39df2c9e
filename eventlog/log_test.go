package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"liquidneuron/core"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "events.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("open bbolt: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	log, err := Open(db)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return log
}

func TestAppendAndIterateRoundTrip(t *testing.T) {
	log := openTestLog(t)
	now := time.Now().UTC()

	if _, err := log.Append(Init{GovernanceShareBps: 1000, InceptionTs: now.Unix()}, now); err != nil {
		t.Fatalf("append init: %v", err)
	}
	if _, err := log.Append(IcpDeposit{Amount: 100, BlockIndex: 7, NtMinted: 100}, now); err != nil {
		t.Fatalf("append deposit: %v", err)
	}

	var decoded []Event
	if err := log.Iterate(func(pos uint64, ev Event) error {
		decoded = append(decoded, ev)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 events, got %d", len(decoded))
	}
	if _, ok := decoded[0].Payload.(Init); !ok {
		t.Fatalf("expected first event to be Init, got %T", decoded[0].Payload)
	}
	deposit, ok := decoded[1].Payload.(IcpDeposit)
	if !ok {
		t.Fatalf("expected second event to be IcpDeposit, got %T", decoded[1].Payload)
	}
	if deposit.Amount != 100 || deposit.BlockIndex != 7 {
		t.Fatalf("unexpected deposit payload: %+v", deposit)
	}
}

func TestLenTracksAppendCount(t *testing.T) {
	log := openTestLog(t)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if _, err := log.Append(MergeNeuron{NeuronId: 1}, now); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	n, err := log.Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
}

func TestPagePagination(t *testing.T) {
	log := openTestLog(t)
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if _, err := log.Append(NeuronSixMonths{NeuronId: core.NeuronId(i)}, now); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	page, total, err := log.Page(3, 4)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if total != 10 {
		t.Fatalf("expected total 10, got %d", total)
	}
	if len(page) != 4 {
		t.Fatalf("expected 4 events in page, got %d", len(page))
	}
}
