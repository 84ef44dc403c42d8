package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
)

var (
	feedsBucket = []byte("feeds")
	logsBucket  = []byte("feed_logs")
)

// BoltStore is the embedded single-file backend used for local runs and
// tests. Records are JSON values under a composite key.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file and its buckets.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{feedsBucket, logsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// boltKey flattens a feed key. The separator cannot occur in ids, feed type
// names, or URLs.
func boltKey(key domain.Key) []byte {
	return []byte(key.CountryID + "\x00" + string(key.FeedType) + "\x00" + key.URL)
}

// UpsertFeed replaces the record for its key.
func (s *BoltStore) UpsertFeed(_ context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode feed record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(feedsBucket).Put(boltKey(rec.Key()), raw)
	})
}

// FindFeed loads the record for a key.
func (s *BoltStore) FindFeed(_ context.Context, key domain.Key) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(feedsBucket).Get(boltKey(key))
		if raw == nil {
			return ErrNotFound
		}
		rec = &Record{}
		return json.Unmarshal(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AppendLog writes one audit row under a monotonically increasing key.
func (s *BoltStore) AppendLog(_ context.Context, entry LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode feed log entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, raw)
	})
}

// Logs returns every audit row in append order.
func (s *BoltStore) Logs(_ context.Context) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(logsBucket).ForEach(func(_, raw []byte) error {
			var entry LogEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the file lock.
func (s *BoltStore) Close(context.Context) error {
	return s.db.Close()
}
