package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var collectionsBucket = []byte("collections")

// BoltStore keeps the document in a bbolt file. Each collection is one
// key in the "collections" bucket; its value is the msgpack-encoded
// record list.
type BoltStore struct {
	bdb *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	bdb, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &BoltStore{bdb: bdb}, nil
}

func (s *BoltStore) Close() error {
	return s.bdb.Close()
}

func (s *BoltStore) Load() (Document, error) {
	doc := Document{}
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(collectionsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			records, err := decodeRecords(v)
			if err != nil {
				return fmt.Errorf("decode collection %q: %w", k, err)
			}
			doc[string(k)] = records
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Save drops and recreates the bucket in a single update transaction.
func (s *BoltStore) Save(doc Document) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(collectionsBucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(collectionsBucket)
		if err != nil {
			return err
		}
		for name, records := range doc {
			v, err := encodeRecords(records)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(name), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return msgpack.Marshal(records)
}

// decodeRecords decodes a msgpack record list and brings numbers back
// to their JSON form, since msgpack keeps integer widths.
func decodeRecords(v []byte) ([]Record, error) {
	var records []Record
	if err := msgpack.Unmarshal(v, &records); err != nil {
		return nil, err
	}
	if records == nil {
		return []Record{}, nil
	}
	return normalizeRecords(records)
}
