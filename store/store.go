// Package store defines the flat-file document store and its durable backends.
package store

import (
	"encoding/json"
	"fmt"
)

// Record is a single entry in a collection. Values are JSON-typed
// (string, float64, bool, nil, []any, map[string]any).
type Record map[string]any

// Fields is an exact-match field set. A record matches when every
// field in the set equals the record's value for that field.
type Fields map[string]any

// Document holds every collection, keyed by collection name. Records
// within a collection keep insertion order.
type Document map[string][]Record

// Backend is the interface that all durable stores must implement.
// The whole document is read at startup and rewritten on every mutation.
type Backend interface {
	// Load returns the persisted document, or an empty one if nothing
	// has been written yet.
	Load() (Document, error)

	// Save replaces the persisted document with doc.
	Save(doc Document) error

	// Close releases any resources held by the backend.
	Close() error
}

// normalize returns a deep copy of v with every value converted to its
// JSON form, so that int(5) and float64(5) compare equal once stored.
// Values JSON cannot represent, such as NaN or a channel, are an error.
func normalize[T any](v T) (T, error) {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("normalize: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("normalize: %w", err)
	}
	return out, nil
}

func normalizeRecord(r Record) (Record, error) {
	if r == nil {
		return nil, nil
	}
	return normalize(r)
}

func normalizeRecords(rs []Record) ([]Record, error) {
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		n, err := normalizeRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func normalizeDocument(doc Document) (Document, error) {
	out := make(Document, len(doc))
	for name, records := range doc {
		rs, err := normalizeRecords(records)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		out[name] = rs
	}
	return out, nil
}

// cloneValue deep-copies a JSON-typed value.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = cloneValue(e)
		}
		return l
	default:
		return v
	}
}

func cloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneRecords(rs []Record) []Record {
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		out = append(out, cloneRecord(r))
	}
	return out
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for name, records := range doc {
		out[name] = cloneRecords(records)
	}
	return out
}
