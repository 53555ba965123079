package storage_test

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/bodrovdev/image-enhancer/adapters/storage"
)

func TestScope_StoreOpenClose(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	scope, err := local.NewScope("job-1")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}

	ctx := context.Background()
	payload := []byte("artifact bytes")
	if err := scope.Store(ctx, "out.jpeg", payload); err != nil {
		t.Fatalf("Store: %v", err)
	}

	rc, err := scope.Open(ctx, "out.jpeg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload mismatch: got %q", got)
	}

	dir := scope.(*storage.Scope).Dir()
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("scope directory survived Close")
	}
}

func TestScope_StoreSanitisesName(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	scope, err := local.NewScope("job-2")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer scope.Close()

	ctx := context.Background()
	if err := scope.Store(ctx, "../../escape.bin", []byte("x")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// The artifact must land inside the scope, not outside.
	if _, err := scope.Open(ctx, "escape.bin"); err != nil {
		t.Errorf("sanitised artifact not found inside scope: %v", err)
	}
}

func TestSweepOlderThan(t *testing.T) {
	root := t.TempDir()
	local, err := storage.NewLocal(root, 0)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	scope, err := local.NewScope("stale")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	dir := scope.(*storage.Scope).Dir()

	// Backdate the scope so the sweep sees it as abandoned.
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if removed := local.SweepOlderThan(time.Hour); removed != 1 {
		t.Errorf("swept %d scopes, want 1", removed)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("stale scope survived the sweep")
	}
}
