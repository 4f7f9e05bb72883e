package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/provenant/internal/store"
)

// OpenStore opens a fresh store in a temp directory, closed at test cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	return OpenStoreAt(t, filepath.Join(t.TempDir(), "provenant.db"))
}

// OpenStoreAt opens the store at path, closed at test cleanup. Opening the
// same path twice simulates two processes sharing one database.
func OpenStoreAt(t testing.TB, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open(%s) failed: %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
