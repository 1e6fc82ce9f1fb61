package store

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Predicate reports whether a record should be included in a Filter result.
type Predicate func(Record) bool

// Match returns a Predicate that accepts records where every field in
// fields equals the record's value. An empty set matches everything.
// Fields holding values JSON cannot represent match nothing, since no
// stored value can equal them.
func Match(fields Fields) Predicate {
	pred, err := matcher(fields)
	if err != nil {
		return func(Record) bool { return false }
	}
	return pred
}

func matcher(fields Fields) (Predicate, error) {
	want, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	return func(r Record) bool {
		for k, v := range want {
			got, ok := r[k]
			if !ok || !reflect.DeepEqual(got, v) {
				return false
			}
		}
		return true
	}, nil
}

// DB is the flat-store accessor. It owns the in-memory document for the
// lifetime of the process and persists the whole document through its
// Backend after every mutation.
//
// Safe for concurrent use: reads share a read lock, and each mutation
// holds the write lock until its persist has returned.
type DB struct {
	mu      sync.RWMutex
	doc     Document
	backend Backend
	log     logrus.FieldLogger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(db *DB) { db.log = l }
}

// Open reads the whole document from backend and returns a DB serving it.
func Open(backend Backend, opts ...Option) (*DB, error) {
	db := &DB{backend: backend, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(db)
	}
	loaded, err := backend.Load()
	if err != nil {
		return nil, err
	}
	doc, err := normalizeDocument(loaded)
	if err != nil {
		return nil, err
	}
	db.doc = doc
	db.log.WithField("collections", len(doc)).Debug("document loaded")
	return db, nil
}

// Close closes the underlying backend.
func (db *DB) Close() error {
	return db.backend.Close()
}

// Defaults makes sure each named collection exists, persisting once if
// any had to be created.
func (db *DB) Defaults(names ...string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var added []string
	for _, name := range names {
		if _, ok := db.doc[name]; !ok {
			db.doc[name] = []Record{}
			added = append(added, name)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if err := db.persist("defaults"); err != nil {
		for _, name := range added {
			delete(db.doc, name)
		}
		return err
	}
	return nil
}

// Collections returns the names of all collections, sorted.
func (db *DB) Collections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.doc))
	for name := range db.doc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of records in a collection.
func (db *DB) Len(collection string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.doc[collection])
}

// Query returns copies of the records in collection that match fields
// exactly, in insertion order. It never returns nil.
func (db *DB) Query(collection string, fields Fields) []Record {
	opsQuery.Inc()
	return db.scan(collection, Match(fields))
}

// Filter is like Query but takes an arbitrary predicate. A nil
// predicate matches every record.
func (db *DB) Filter(collection string, pred Predicate) []Record {
	opsFilter.Inc()
	return db.scan(collection, pred)
}

func (db *DB) scan(collection string, pred Predicate) []Record {
	db.mu.RLock()
	defer db.mu.RUnlock()
	result := []Record{}
	for _, r := range db.doc[collection] {
		if pred == nil || pred(r) {
			result = append(result, cloneRecord(r))
		}
	}
	return result
}

// Insert appends record to collection and persists the document. It
// returns a snapshot of the collection after the append. A record that
// cannot be represented as JSON is rejected before anything changes.
func (db *DB) Insert(collection string, record Record) ([]Record, error) {
	opsInsert.Inc()
	rec, err := normalizeRecord(record)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.appendLocked(collection, rec); err != nil {
		return nil, err
	}
	return cloneRecords(db.doc[collection]), nil
}

// appendLocked stores an already normalized record.
func (db *DB) appendLocked(collection string, rec Record) error {
	prev, existed := db.doc[collection]
	db.doc[collection] = append(prev, rec)
	if err := db.persist("insert"); err != nil {
		if existed {
			db.doc[collection] = prev
		} else {
			delete(db.doc, collection)
		}
		return err
	}
	return nil
}

// Upsert merges patch into the first record matching fields and
// persists the document. When nothing matches, patch is inserted as a
// new record. The stored record is returned.
func (db *DB) Upsert(collection string, fields Fields, patch Record) (Record, error) {
	opsUpsert.Inc()
	pred, err := matcher(fields)
	if err != nil {
		return nil, fmt.Errorf("upsert into %s: %w", collection, err)
	}
	rec, err := normalizeRecord(patch)
	if err != nil {
		return nil, fmt.Errorf("upsert into %s: %w", collection, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	records := db.doc[collection]
	for i, r := range records {
		if !pred(r) {
			continue
		}
		old := r
		merged := cloneRecord(r)
		if merged == nil {
			merged = Record{}
		}
		for k, v := range rec {
			merged[k] = v
		}
		records[i] = merged
		if err := db.persist("upsert"); err != nil {
			records[i] = old
			return nil, err
		}
		return cloneRecord(merged), nil
	}

	if err := db.appendLocked(collection, rec); err != nil {
		return nil, err
	}
	return cloneRecord(rec), nil
}

// persist writes the whole document. Callers must hold the write lock.
func (db *DB) persist(op string) error {
	start := time.Now()
	err := db.backend.Save(db.doc)
	persistDuration.UpdateDuration(start)
	if err != nil {
		persistErrors.Inc()
		db.log.WithError(err).WithField("op", op).Error("persist failed")
		return err
	}
	return nil
}
