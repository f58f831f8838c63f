// Package db locates and opens the workspace database that holds the sync
// journal.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	// StateDir is the per-workspace directory for local client state.
	StateDir = ".storm"
	// FileName is the journal database inside StateDir.
	FileName = "storm.db"
)

// pragmas are applied by the driver on every new connection.
var pragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
}

type Config struct {
	Workspace string
}

func (c Config) root() string {
	if c.Workspace == "" {
		return "."
	}
	return c.Workspace
}

// Path returns the database file of workspace.
func Path(workspace string) string {
	return filepath.Join(Config{Workspace: workspace}.root(), StateDir, FileName)
}

// EnsureWorkspace creates the state directory of workspace if missing and
// returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(Config{Workspace: workspace}.root(), StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// DSN is the driver data source for the database file at path.
func DSN(path string) string {
	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Open opens the journal database of the workspace, creating the state
// directory first. The connection is checked before returning.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	path := Path(cfg.Workspace)
	conn, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return conn, nil
}
