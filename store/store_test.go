package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/butterfly-api/store"
)

// runBackendTests runs a common test suite against any Backend implementation.
func runBackendTests(t *testing.T, b store.Backend) {
	t.Helper()

	t.Run("Load empty", func(t *testing.T) {
		doc, err := b.Load()
		require.NoError(t, err)
		assert.Empty(t, doc)
	})

	t.Run("Save and Load", func(t *testing.T) {
		doc := store.Document{
			"butterflies": {
				{"id": "bf1", "commonName": "Plum Judy", "species": "Abisara echerius"},
			},
			"ratings": {
				{"userId": "u1", "butterflyId": "bf1", "rating": float64(5)},
				{"userId": "u2", "butterflyId": "bf1", "rating": float64(3)},
			},
		}
		require.NoError(t, b.Save(doc))

		got, err := b.Load()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Plum Judy", got["butterflies"][0]["commonName"])
		require.Len(t, got["ratings"], 2)
		assert.Equal(t, float64(5), got["ratings"][0]["rating"])
		assert.Equal(t, "u2", got["ratings"][1]["userId"])
	})

	t.Run("Save replaces whole document", func(t *testing.T) {
		require.NoError(t, b.Save(store.Document{"users": {{"id": "u1", "username": "alice"}}}))

		got, err := b.Load()
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Contains(t, got, "users")
		assert.NotContains(t, got, "ratings")
	})

	t.Run("Empty collection survives", func(t *testing.T) {
		require.NoError(t, b.Save(store.Document{"ratings": {}}))

		got, err := b.Load()
		require.NoError(t, err)
		records, ok := got["ratings"]
		require.True(t, ok, "expected ratings collection to exist")
		assert.Empty(t, records)
	})
}

func TestMemoryStore(t *testing.T) {
	runBackendTests(t, store.NewMemoryStore())
}

func TestJSONFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewJSONFileStore(filepath.Join(dir, "db.json"))
	require.NoError(t, err)
	runBackendTests(t, s)
}

func TestSqliteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewSqliteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer s.Close()
	runBackendTests(t, s)
}

func TestBoltStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewBoltStore(filepath.Join(dir, "test.bolt"))
	require.NoError(t, err)
	defer s.Close()
	runBackendTests(t, s)
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
	}{
		{"json"},
		{"sqlite"},
		{"bolt"},
		{"memory"},
		{""},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			b, err := store.New(tc.backend, filepath.Join(dir, "db-"+tc.backend))
			require.NoError(t, err)
			assert.NoError(t, b.Close())
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := store.New("redis", dir)
		assert.Error(t, err)
	})
}

func TestJSONFileStoreLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "db.json")
	s, err := store.NewJSONFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Save(store.Document{"users": {{"id": "u1", "username": "alice"}}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[{"id":"u1","username":"alice"}]}`, string(raw))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files should not be left behind")
}

func TestJSONFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := store.NewJSONFileStore(path)
	require.NoError(t, err)
	_, err = s.Load()
	assert.Error(t, err)
}

func TestBoltStoreNormalizesNumbers(t *testing.T) {
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "n.bolt"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(store.Document{"ratings": {{"rating": 4}}}))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(4), got["ratings"][0]["rating"])
}
