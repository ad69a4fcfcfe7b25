package resultstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNextSeqDistinctValues(t *testing.T) {
	s := New[uint64]()
	seen := map[uint64]bool{}
	for i := 0; i < 1000; i++ {
		seq := s.NextSeq()
		if seen[seq] {
			t.Fatalf("duplicate sequence %d", seq)
		}
		seen[seq] = true
	}
}

func TestDeliverWakesOnlyMatchingWaiter(t *testing.T) {
	s := New[uint64]()
	var wg sync.WaitGroup
	results := map[uint64]map[string]any{}
	var mu sync.Mutex

	for _, seq := range []uint64{1, 2, 3} {
		seq := seq
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, err := s.AwaitReply(context.Background(), seq, 2*time.Second)
			if err != nil {
				return
			}
			mu.Lock()
			results[seq] = payload
			mu.Unlock()
		}()
	}

	time.Sleep(20 * time.Millisecond)
	ok := s.Deliver(2, map[string]any{"echo": "2", "data": "hit"})
	if !ok {
		t.Fatal("Deliver() reported no waiter for seq 2")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	_, gotOne := results[1]
	_, gotTwo := results[2]
	_, gotThree := results[3]
	mu.Unlock()
	if gotOne || gotThree {
		t.Fatal("delivery to seq 2 woke an unrelated waiter")
	}
	if !gotTwo {
		t.Fatal("matching waiter was not woken")
	}

	// Let the other two waiters time out so the goroutines don't leak past
	// the test.
	wg.Wait()
}

func TestAwaitReplyTimeout(t *testing.T) {
	s := New[uint64]()
	_, err := s.AwaitReply(context.Background(), 42, 10*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("AwaitReply() err = %v, want ErrTimeout", err)
	}
}

func TestDeliverToRemovedEntryDropped(t *testing.T) {
	s := New[uint64]()
	_, _ = s.AwaitReply(context.Background(), 7, time.Millisecond)
	// waiter has already been removed by the timeout path above.
	if ok := s.Deliver(7, map[string]any{"echo": "7"}); ok {
		t.Fatal("Deliver() found a waiter that should have been removed")
	}
}

func TestParseEcho(t *testing.T) {
	cases := []struct {
		in   any
		want uint64
		ok   bool
	}{
		{"42", 42, true},
		{float64(42), 42, true},
		{"not-a-number", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := ParseEcho(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ParseEcho(%v) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
