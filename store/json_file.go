package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileStore keeps the whole document in a single JSON file.
//
// Layout:
//
//	{
//	  "butterflies": [ ... ],
//	  "users":       [ ... ],
//	  "ratings":     [ ... ]
//	}
type JSONFileStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONFileStore(path string) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &JSONFileStore{path: path}, nil
}

// Path returns the location of the database file.
func (s *JSONFileStore) Path() string {
	return s.path
}

func (s *JSONFileStore) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Save writes to a temporary file in the same directory and renames it
// over the old one, so a crash mid-write leaves the previous document.
func (s *JSONFileStore) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *JSONFileStore) Close() error {
	return nil
}
