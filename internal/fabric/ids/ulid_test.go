package ids

import (
	"sync"
	"testing"
)

func TestNewEnvelopeIDLength(t *testing.T) {
	id := NewEnvelopeID()
	if len(id) != 26 {
		t.Fatalf("expected 26-character ULID, got %d: %s", len(id), id)
	}
}

func TestNewEnvelopeIDMonotonic(t *testing.T) {
	prev := NewEnvelopeID()
	for i := 0; i < 100; i++ {
		next := NewEnvelopeID()
		if next <= prev {
			t.Fatalf("expected strictly increasing ids, got %s after %s", next, prev)
		}
		prev = next
	}
}

func TestNewEnvelopeIDConcurrent(t *testing.T) {
	const n = 200
	seen := make(map[string]struct{}, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewEnvelopeID()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d unique ids, got %d", n, len(seen))
	}
}
