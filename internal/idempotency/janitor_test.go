package idempotency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) Purge() int {
	p.calls.Add(1)
	return 1
}

func TestJanitor_PurgesUntilCancelled(t *testing.T) {
	purger := &countingPurger{}
	janitor := NewJanitor(purger, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- janitor.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for purger.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 purges, got %d", purger.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestJanitor_DropsExpiredMemoryEntries(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if err := store.Set(ctx, "old", &Response{Status: 201}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "fresh", &Response{Status: 201}, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(2 * time.Minute)
	NewJanitor(store, time.Minute, zap.NewNop()).purgeOnce()

	if store.Size() != 1 {
		t.Errorf("expected 1 entry after purge, got %d", store.Size())
	}
}
