// Package testutil provides shared test helpers for setting up note roots and databases.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/marknest/internal/sandbox"
	"github.com/starford/marknest/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "marknest-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			os.Remove(dbFile.Name() + suffix)
		}
	})

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSandbox creates a sandbox over a temporary notes directory.
func TestSandbox(t *testing.T) *sandbox.Sandbox {
	t.Helper()
	sb, err := sandbox.New(filepath.Join(t.TempDir(), "notes"))
	if err != nil {
		t.Fatal(err)
	}
	return sb
}

// TestUser registers an active account with the given id so that file
// records can reference it.
func TestUser(t *testing.T, db *store.DB, id string) *store.User {
	t.Helper()
	u := &store.User{
		ID:           id,
		Username:     "user-" + id,
		Email:        id + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}
