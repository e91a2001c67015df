package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = RunMigrations(db)
	require.NoError(t, err)

	return db
}

func TestNewConnection(t *testing.T) {
	_, err := NewConnection("")
	if err == nil {
		t.Error("Expected error for empty database path")
	}

	db, err := NewConnection(filepath.Join(t.TempDir(), "nested", "dir", "manga.db"))
	if err != nil {
		t.Fatalf("Expected connection to succeed, got %v", err)
	}
	defer db.Close()
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}
