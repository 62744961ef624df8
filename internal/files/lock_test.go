package files

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexExclusive(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "project:1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max holders = %d, want 1", maxInside)
	}
	if m.size() != 0 {
		t.Errorf("lock table size = %d after release, want 0", m.size())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlockA, err := m.Lock(ctx, "project:a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()
	unlockB, err := m.Lock(ctx, "project:b")
	if err != nil {
		t.Fatalf("second key blocked: %v", err)
	}
	unlockB()
}

func TestKeyedMutexTimeout(t *testing.T) {
	m := NewKeyedMutex()
	unlock, _ := m.Lock(context.Background(), "app:1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "app:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	unlock()
	unlock() // second call is a no-op
	if m.size() != 0 {
		t.Errorf("lock table size = %d, want 0", m.size())
	}

	again, err := m.Lock(context.Background(), "app:1")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
