// Package testutil provides shared test helpers for vaults, databases and time.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/storage"
)

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "marginalia-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// VaultPaths lists the Markdown files in store, failing the test on error.
func VaultPaths(t *testing.T, store storage.Provider) []string {
	t.Helper()
	metas, err := store.List("")
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, 0, len(metas))
	for _, m := range metas {
		out = append(out, m.Path)
	}
	return out
}
