package journal

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var bucketFacts = []byte("facts")

// BoltSink appends facts to a bbolt file keyed by their sortable id.
type BoltSink struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*BoltSink, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFacts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltSink{db: db}, nil
}

func (s *BoltSink) Write(_ context.Context, f Fact) error {
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encoding fact: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFacts).Put([]byte(f.ID), data)
	})
}

// Recent returns up to limit facts, newest first.
func (s *BoltSink) Recent(_ context.Context, limit int) ([]Fact, error) {
	out := make([]Fact, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFacts).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var f Fact
			if err := msgpack.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decoding fact %s: %w", k, err)
			}
			out = append(out, f)
		}
		return nil
	})
	return out, err
}

func (s *BoltSink) Close() error {
	return s.db.Close()
}
