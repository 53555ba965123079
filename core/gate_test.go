package core_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// fakeScope counts Close calls.
type fakeScope struct {
	closed int32
}

func (f *fakeScope) Store(context.Context, string, []byte) error { return nil }
func (f *fakeScope) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not stored")
}
func (f *fakeScope) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func TestGate_BoundsAdmissions(t *testing.T) {
	gate := core.NewGate(2, 50*time.Millisecond, nil)

	a1, err := gate.Admit(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Admit 1: %v", err)
	}
	a2, err := gate.Admit(context.Background(), "j2")
	if err != nil {
		t.Fatalf("Admit 2: %v", err)
	}
	if gate.Active() != 2 {
		t.Errorf("active: got %d, want 2", gate.Active())
	}

	// Third admission must wait out the queue timeout.
	_, err = gate.Admit(context.Background(), "j3")
	if !apperrors.IsKind(err, apperrors.KindQueueTimeout) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindQueueTimeout)
	}

	a1.Release()
	a3, err := gate.Admit(context.Background(), "j3")
	if err != nil {
		t.Fatalf("Admit after release: %v", err)
	}
	a3.Release()
	a2.Release()

	if gate.Active() != 0 {
		t.Errorf("active after drain: got %d, want 0", gate.Active())
	}
}

func TestGate_ReleaseIdempotent(t *testing.T) {
	scope := &fakeScope{}
	gate := core.NewGate(1, 0, func(string) (core.Workspace, error) { return scope, nil })

	adm, err := gate.Admit(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	adm.Release()
	adm.Release()
	adm.Release()

	if got := atomic.LoadInt32(&scope.closed); got != 1 {
		t.Errorf("scope closed %d times, want exactly 1", got)
	}
	if gate.Active() != 0 {
		t.Errorf("active: got %d, want 0", gate.Active())
	}

	// The single slot must be usable again, exactly once.
	a2, err := gate.Admit(context.Background(), "j2")
	if err != nil {
		t.Fatalf("Admit after double release: %v", err)
	}
	a2.Release()
}

func TestGate_ScopeFactoryFailureReturnsSlot(t *testing.T) {
	calls := 0
	gate := core.NewGate(1, 50*time.Millisecond, func(string) (core.Workspace, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("disk full")
		}
		return &fakeScope{}, nil
	})

	if _, err := gate.Admit(context.Background(), "j1"); err == nil {
		t.Fatal("expected scope factory error")
	}

	// The failed admission must not leak its slot.
	adm, err := gate.Admit(context.Background(), "j2")
	if err != nil {
		t.Fatalf("Admit after factory failure: %v", err)
	}
	adm.Release()
}

func TestGate_CancelledWhileQueued(t *testing.T) {
	gate := core.NewGate(1, 0, nil)

	adm, err := gate.Admit(context.Background(), "holder")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	defer adm.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = gate.Admit(ctx, "waiter")
	if !apperrors.IsKind(err, apperrors.KindQueueTimeout) {
		t.Errorf("kind: got %s, want %s", apperrors.KindOf(err), apperrors.KindQueueTimeout)
	}
	if gate.Active() != 1 {
		t.Errorf("active: got %d, want 1 (only the holder)", gate.Active())
	}
}

func TestGate_Slots(t *testing.T) {
	if got := core.NewGate(5, 0, nil).Slots(); got != 5 {
		t.Errorf("slots: got %d, want 5", got)
	}
	// Non-positive slot counts fall back to the default of 3.
	if got := core.NewGate(0, 0, nil).Slots(); got != 3 {
		t.Errorf("default slots: got %d, want 3", got)
	}
}
