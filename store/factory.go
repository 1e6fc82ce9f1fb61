package store

import "fmt"

// New creates a Backend based on the backend name.
//
// Supported backends:
//
//	"json"   - a single JSON file at path (default)
//	"sqlite" - SQLite database at path
//	"bolt"   - bbolt database at path
//	"memory" - In-memory (ephemeral, for testing)
func New(backend, path string) (Backend, error) {
	switch backend {
	case "json", "":
		return NewJSONFileStore(path)
	case "sqlite":
		return NewSqliteStore(path)
	case "bolt":
		return NewBoltStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, bolt, memory)", backend)
	}
}
