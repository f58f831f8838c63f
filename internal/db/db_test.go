package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/internal/db"
)

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join(".", ".storm", "storm.db"), db.Path(""))
	assert.Equal(t, filepath.Join("ws", ".storm", "storm.db"), db.Path("ws"))
}

func TestDSNCarriesPragmas(t *testing.T) {
	dsn := db.DSN("/tmp/x.db")
	assert.Equal(t, "file:/tmp/x.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)
}

func TestOpenCreatesWorkspace(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "nested")
	conn, err := db.Open(db.Config{Workspace: ws})
	require.NoError(t, err)
	defer conn.Close()

	_, err = os.Stat(filepath.Join(ws, db.StateDir))
	require.NoError(t, err)

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
	var mode string
	require.NoError(t, conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}
