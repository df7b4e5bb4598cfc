package services

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// newTestDB opens a throwaway sqlite database with the full schema applied
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=ON")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	entries, err := os.ReadDir(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)

	var names []string
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".sql" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
		require.NoError(t, err)
		_, err = db.Exec(string(script))
		require.NoError(t, err)
	}

	return db
}
