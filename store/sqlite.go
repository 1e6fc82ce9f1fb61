package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteStore keeps the document in a single SQLite database, one row
// per collection.
//
// Tables:
//
//	collections(name, data)  PRIMARY KEY (name)
type SqliteStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT name, data FROM collections")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	doc := Document{}
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var records []Record
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			return nil, fmt.Errorf("decode collection %q: %w", name, err)
		}
		if records == nil {
			records = []Record{}
		}
		doc[name] = records
	}
	return doc, rows.Err()
}

// Save rewrites every collection row inside one transaction.
func (s *SqliteStore) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM collections"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO collections (name, data) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for name, records := range doc {
		if records == nil {
			records = []Record{}
		}
		b, err := json.Marshal(records)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(name, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
