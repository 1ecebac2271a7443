package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_Memory(t *testing.T) {
	database, err := NewSqliteDB()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	// a second statement must see the same in-memory database
	_, err = database.Exec("INSERT INTO t (v) VALUES ('x')")
	require.NoError(t, err)

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 1, count)
}

func TestNewSqliteDB_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	database, err := NewSqliteDB(WithPath(dbPath), WithMaxOpenConns(2))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDB_CustomPragmas(t *testing.T) {
	database, err := NewSqliteDB(WithPragmas("PRAGMA foreign_keys=ON;"))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t2 (id INTEGER PRIMARY KEY)")
	assert.NoError(t, err)
}
