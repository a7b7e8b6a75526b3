package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHandler_Shutdown_LIFO(t *testing.T) {
	h := NewDefault()

	var order []string
	h.RegisterCloser("first", func() error {
		order = append(order, "first")
		return nil
	})
	h.RegisterCloser("second", func() error {
		order = append(order, "second")
		return nil
	})

	h.Shutdown()
	<-h.Done()

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("teardown order = %v, want [second first]", order)
	}
}

func TestHandler_Context(t *testing.T) {
	h := NewDefault()

	select {
	case <-h.Context().Done():
		t.Fatal("context cancelled before shutdown")
	default:
	}

	h.Shutdown()
	<-h.Done()

	select {
	case <-h.Context().Done():
	default:
		t.Error("context should be cancelled after shutdown")
	}
	if !h.Stopping() {
		t.Error("Stopping() should report true after shutdown")
	}
}

func TestHandler_Shutdown_Idempotent(t *testing.T) {
	h := NewDefault()

	calls := 0
	h.RegisterCloser("once", func() error {
		calls++
		return nil
	})

	h.Shutdown()
	h.Shutdown()
	<-h.Done()

	if calls != 1 {
		t.Errorf("teardown ran %d times, want 1", calls)
	}
}

func TestHandler_Shutdown_CollectsErrors(t *testing.T) {
	var got []error
	h := New(Config{
		OnDone: func(_ time.Duration, errs []error) { got = errs },
	})

	h.RegisterCloser("failing", func() error {
		return errors.New("close failed")
	})
	h.RegisterCloser("fine", func() error { return nil })

	h.Shutdown()
	<-h.Done()

	if len(got) != 1 {
		t.Fatalf("collected %d errors, want 1", len(got))
	}
}

func TestHandler_Timeout(t *testing.T) {
	h := New(Config{Timeout: 50 * time.Millisecond})

	block := make(chan struct{})
	defer close(block)
	h.Register("stuck", func(ctx context.Context) error {
		<-block
		return nil
	})

	start := time.Now()
	h.Shutdown()
	<-h.Done()

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown took %v, timeout not applied", elapsed)
	}
}
