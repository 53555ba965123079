// Package storage provides the job workspace implementation: a per-job
// temporary directory scope for intermediate and output artifacts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// Local hands out workspace scopes rooted under a temp directory.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local workspace provider rooted at dir.  An empty dir
// defaults to a module-specific directory under os.TempDir().
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "image-enhancer")
	}
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

// Root returns the directory scopes are created under.
func (l *Local) Root() string { return l.rootDir }

// NewScope creates a private directory for one job.  The scope is removed in
// full when Close is called, which the gate guarantees on every exit path.
func (l *Local) NewScope(jobID string) (core.Workspace, error) {
	dir, err := os.MkdirTemp(l.rootDir, filepath.Clean(jobID)+"-*")
	if err != nil {
		return nil, fmt.Errorf("workspace: scope for %s: %w", jobID, err)
	}
	return &Scope{dir: dir, permissions: l.permissions}, nil
}

// SweepOlderThan removes leftover scopes older than maxAge and returns how
// many were deleted.  A maintenance helper for hosts that crashed mid-job.
func (l *Local) SweepOlderThan(maxAge time.Duration) int {
	entries, err := os.ReadDir(l.rootDir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.RemoveAll(filepath.Join(l.rootDir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// Scope is one job's private temporary storage.
type Scope struct {
	dir         string
	permissions os.FileMode
}

var _ core.Workspace = (*Scope)(nil)

// Dir exposes the scope directory for tests and diagnostics.
func (s *Scope) Dir() string { return s.dir }

func (s *Scope) Store(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "workspace.store", err)
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, s.permissions); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "workspace.store", err)
	}
	return nil
}

func (s *Scope) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "workspace.open", err)
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.KindInternal, "workspace.open",
				fmt.Errorf("artifact not found: %s", name))
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "workspace.open", err)
	}
	return f, nil
}

// Close deletes the scope directory and everything in it.
func (s *Scope) Close() error {
	return os.RemoveAll(s.dir)
}
