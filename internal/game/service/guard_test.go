package service

import (
	"errors"
	"sync"
	"testing"
)

func TestTryAcquireAndRelease(t *testing.T) {
	g := NewMoveGuard()

	release, err := g.TryAcquire("g1")
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}

	if _, err := g.TryAcquire("g1"); !errors.Is(err, ErrMoveInProgress) {
		t.Fatalf("second TryAcquire() error = %v, want ErrMoveInProgress", err)
	}

	release()
	release2, err := g.TryAcquire("g1")
	if err != nil {
		t.Fatalf("TryAcquire() after release error = %v", err)
	}
	release2()
}

func TestTryAcquireIsPerSession(t *testing.T) {
	g := NewMoveGuard()

	r1, err := g.TryAcquire("g1")
	if err != nil {
		t.Fatalf("TryAcquire(g1) error = %v", err)
	}
	defer r1()

	r2, err := g.TryAcquire("g2")
	if err != nil {
		t.Fatalf("TryAcquire(g2) error = %v", err)
	}
	defer r2()
}

func TestTryAcquireConcurrent(t *testing.T) {
	g := NewMoveGuard()

	const n = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, err := g.TryAcquire("g1")
			if err != nil {
				return
			}
			mu.Lock()
			acquired++
			mu.Unlock()
			release()
		}()
	}
	close(start)
	wg.Wait()

	if acquired == 0 {
		t.Error("no goroutine ever acquired the guard")
	}

	// The slot must be free once everyone released.
	release, err := g.TryAcquire("g1")
	if err != nil {
		t.Fatalf("TryAcquire() after storm error = %v", err)
	}
	release()
}

func TestForget(t *testing.T) {
	g := NewMoveGuard()

	release, err := g.TryAcquire("g1")
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	release()
	g.Forget("g1")

	// Forgetting a session the guard never saw is a no-op.
	g.Forget("never-seen")

	release, err = g.TryAcquire("g1")
	if err != nil {
		t.Fatalf("TryAcquire() after Forget error = %v", err)
	}
	release()
}
