package store

import "sync"

// MemoryStore keeps the document in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	doc   Document
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{doc: Document{}}
}

// NewMemoryStoreWith returns a MemoryStore pre-populated with doc.
func NewMemoryStoreWith(doc Document) *MemoryStore {
	return &MemoryStore{doc: cloneDocument(doc)}
}

func (m *MemoryStore) Load() (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneDocument(m.doc), nil
}

func (m *MemoryStore) Save(doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = cloneDocument(doc)
	m.saves++
	return nil
}

// Saves reports how many times the document has been written.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *MemoryStore) Close() error {
	return nil
}
