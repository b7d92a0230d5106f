// Package testutil provides shared test helpers for stores and the AI bridge.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/thinkblock/internal/models"
	"github.com/starford/thinkblock/internal/storage"
)

// MemoryStore returns a fresh in-memory provider.
func MemoryStore(t *testing.T) storage.Provider {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })
	return store
}

// SQLiteStore creates a temporary SQLite database that is automatically cleaned up.
func SQLiteStore(t *testing.T) storage.Provider {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "thinkblock-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Project creates a project named name in store.
func Project(t *testing.T, store storage.Provider, name string) *models.Project {
	t.Helper()
	p, err := store.CreateProject(context.Background(), name)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

// Block creates a block at level with an appended order.
func Block(t *testing.T, store storage.Provider, projectID, title string, level int) *models.Block {
	t.Helper()
	b, err := store.CreateBlock(context.Background(), projectID, models.NewBlock{Title: title, Level: level})
	if err != nil {
		t.Fatalf("create block %q: %v", title, err)
	}
	return b
}

// Generator is a canned model. Each call consumes the next answer; the
// last answer repeats once the list is exhausted.
type Generator struct {
	Answers []string
	Err     error

	mu      sync.Mutex
	prompts []string
}

// Generate records prompt and returns the next canned answer.
func (g *Generator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.Err != nil {
		return "", g.Err
	}
	if len(g.Answers) == 0 {
		return "", nil
	}
	i := len(g.prompts) - 1
	if i >= len(g.Answers) {
		i = len(g.Answers) - 1
	}
	return g.Answers[i], nil
}

// Prompts returns every prompt received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
