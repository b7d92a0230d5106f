package gcpauth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFindFile_ExplicitRelativeResolvesAgainstRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "sa.json"))
	touch(t, filepath.Join(root, "vertex-ai-thinkblock.json"))

	got := FindFile(root, "", "sa.json")
	if got != filepath.Join(root, "sa.json") {
		t.Fatalf("got %q", got)
	}
}

func TestFindFile_MissingExplicitFallsBackToWellKnown(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "firebase-credentials.json"))

	got := FindFile(root, filepath.Join(root, "nope.json"))
	if got != filepath.Join(root, "firebase-credentials.json") {
		t.Fatalf("got %q", got)
	}
}

func TestFindFile_WellKnownOrder(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "firebase-credentials.json"))
	touch(t, filepath.Join(root, "vertex-ai-thinkblock.json"))

	if got := FindFile(root); got != filepath.Join(root, "vertex-ai-thinkblock.json") {
		t.Fatalf("got %q", got)
	}
}

func TestFindFile_NothingMeansAmbient(t *testing.T) {
	if got := FindFile(t.TempDir()); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestProjectID_PrefersConfigured(t *testing.T) {
	id, err := ProjectID(context.Background(), nil, "thinkblock")
	if err != nil || id != "thinkblock" {
		t.Fatalf("got %q, %v", id, err)
	}
	if _, err := ProjectID(context.Background(), nil, ""); !errors.Is(err, ErrNoProject) {
		t.Fatalf("expected ErrNoProject, got %v", err)
	}
}
