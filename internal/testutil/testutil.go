// Package testutil provides shared test helpers for setting up workspaces,
// databases, and engines.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/ehwaz/internal/engine"
	"github.com/starford/ehwaz/internal/refindex"
	"github.com/starford/ehwaz/internal/workspace"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *refindex.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ehwaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := refindex.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a Provider.
func TestWorkspace(t *testing.T) (string, workspace.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := workspace.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestEngine creates an engine on a fresh temporary workspace.
func TestEngine(t *testing.T) (*engine.Engine, workspace.Provider) {
	t.Helper()
	_, store := TestWorkspace(t)
	eng := engine.New(Logger(), engine.WithStore(store))
	return eng, store
}
