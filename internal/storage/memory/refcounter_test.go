package memory

import (
	"sync"
	"testing"
)

func TestRefCounter_IncrementDecrement(t *testing.T) {
	r := NewRefCounter()

	if err := r.Increment(7, 1); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if !r.ContainsUser(7, 1) || !r.ContainsContext(1) {
		t.Fatal("counters should be positive after Increment")
	}

	r.Decrement(7, 1)
	if r.ContainsUser(7, 1) || r.ContainsContext(1) {
		t.Fatal("counters should be gone after matching Decrement")
	}
	if users, contexts := r.Len(); users != 0 || contexts != 0 {
		t.Errorf("Len() = (%d, %d), want (0, 0)", users, contexts)
	}
}

func TestRefCounter_DecrementAbsentIsNoop(t *testing.T) {
	r := NewRefCounter()
	r.Decrement(1, 1)
	if r.UserCount(1, 1) != 0 || r.ContextCount(1) != 0 {
		t.Fatal("decrementing an absent counter must not create a negative entry")
	}
}

// Increment is dual unconditionally; Decrement only cascades to the context
// counter when the user counter reaches zero.
func TestRefCounter_Asymmetry(t *testing.T) {
	r := NewRefCounter()

	for i := 0; i < 3; i++ {
		if err := r.Increment(7, 1); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if got := r.UserCount(7, 1); got != 3 {
		t.Fatalf("UserCount = %d, want 3", got)
	}
	if got := r.ContextCount(1); got != 3 {
		t.Fatalf("ContextCount = %d, want 3 (every increment bumps the context)", got)
	}

	r.Decrement(7, 1)
	r.Decrement(7, 1)
	if got := r.ContextCount(1); got != 3 {
		t.Fatalf("ContextCount = %d, want 3 (user counter still positive)", got)
	}

	r.Decrement(7, 1)
	if r.ContainsUser(7, 1) {
		t.Fatal("user counter should be removed at zero")
	}
	if got := r.ContextCount(1); got != 2 {
		t.Fatalf("ContextCount = %d, want 2 (one cascade on user reaching zero)", got)
	}
}

func TestRefCounter_IndependentUsers(t *testing.T) {
	r := NewRefCounter()
	_ = r.Increment(1, 5)
	_ = r.Increment(2, 5)

	r.Decrement(1, 5)
	if !r.ContainsContext(5) {
		t.Fatal("context 5 still has user 2")
	}
	r.Decrement(2, 5)
	if r.ContainsContext(5) {
		t.Fatal("context 5 should be empty")
	}
}

func TestRefCounter_ConcurrentNeverNegative(t *testing.T) {
	r := NewRefCounter()
	const workers = 16
	const rounds = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if err := r.Increment(7, 1); err != nil {
					t.Errorf("Increment: %v", err)
					return
				}
				if r.UserCount(7, 1) < 0 {
					t.Error("observed negative count")
				}
				r.Decrement(7, 1)
			}
		}()
	}
	wg.Wait()

	if r.ContainsUser(7, 1) {
		t.Errorf("UserCount = %d after balanced calls, want 0", r.UserCount(7, 1))
	}
	if users, _ := r.Len(); users != 0 {
		t.Errorf("stale user entries: %d", users)
	}
}

func TestRefCounter_IncrementBelow(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		calls   int
		wantOK  int
		wantCnt int64
	}{
		{"no limit", 0, 5, 5, 5},
		{"limit one", 1, 5, 1, 1},
		{"limit three", 3, 5, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRefCounter()
			ok := 0
			for i := 0; i < tt.calls; i++ {
				admitted, err := r.IncrementBelow(7, 1, tt.limit)
				if err != nil {
					t.Fatalf("IncrementBelow: %v", err)
				}
				if admitted {
					ok++
				}
			}
			if ok != tt.wantOK {
				t.Errorf("admitted %d, want %d", ok, tt.wantOK)
			}
			if got := r.UserCount(7, 1); got != tt.wantCnt {
				t.Errorf("UserCount = %d, want %d", got, tt.wantCnt)
			}
			if got := r.ContextCount(1); got != tt.wantCnt {
				t.Errorf("ContextCount = %d, want %d", got, tt.wantCnt)
			}
		})
	}
}

func TestRefCounter_IncrementBelowConcurrent(t *testing.T) {
	r := NewRefCounter()
	const workers = 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	start := make(chan struct{})
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := r.IncrementBelow(3, 1, 1)
			if err != nil {
				t.Errorf("IncrementBelow: %v", err)
				return
			}
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if admitted != 1 {
		t.Fatalf("admitted %d increments under limit 1, want 1", admitted)
	}
	if got := r.UserCount(3, 1); got != 1 {
		t.Errorf("UserCount = %d, want 1", got)
	}
}
