package ringbuf

import (
	"sync"
	"testing"
)

func TestBuffer_BasicPush(t *testing.T) {
	buf := New[int](5)

	for i := 0; i < 3; i++ {
		if buf.Push(i) {
			t.Fatalf("Push(%d) evicted from a non-full buffer", i)
		}
	}

	if buf.Len() != 3 {
		t.Errorf("Len() = %d, want 3", buf.Len())
	}

	got := buf.Snapshot()
	for i, v := range got {
		if v != i {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestBuffer_EvictsOldest(t *testing.T) {
	buf := New[int](3)

	for i := 0; i < 7; i++ {
		buf.Push(i)
	}

	got := buf.Snapshot()
	want := []int{4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("Snapshot() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	stats := buf.Stats()
	if stats.Evicted != 4 {
		t.Errorf("Evicted = %d, want 4", stats.Evicted)
	}
	if stats.TotalPushed != 7 {
		t.Errorf("TotalPushed = %d, want 7", stats.TotalPushed)
	}
	if stats.Count != 3 || stats.Capacity != 3 {
		t.Errorf("Count/Capacity = %d/%d, want 3/3", stats.Count, stats.Capacity)
	}
}

func TestBuffer_Last(t *testing.T) {
	buf := New[string](2)

	if _, ok := buf.Last(); ok {
		t.Error("Last() on empty buffer returned ok")
	}

	buf.Push("a")
	buf.Push("b")
	buf.Push("c")

	last, ok := buf.Last()
	if !ok || last != "c" {
		t.Errorf("Last() = %q, %v, want c, true", last, ok)
	}
}

func TestBuffer_Reset(t *testing.T) {
	buf := New[int](4)
	for i := 0; i < 6; i++ {
		buf.Push(i)
	}

	buf.Reset()

	if buf.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", buf.Len())
	}
	if len(buf.Snapshot()) != 0 {
		t.Error("Snapshot() after Reset not empty")
	}

	buf.Push(42)
	got := buf.Snapshot()
	if len(got) != 1 || got[0] != 42 {
		t.Errorf("Snapshot() after Reset+Push = %v, want [42]", got)
	}
}

func TestBuffer_MinimumCapacity(t *testing.T) {
	buf := New[int](0)
	if buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", buf.Cap())
	}
	buf.Push(1)
	buf.Push(2)
	if got := buf.Snapshot(); len(got) != 1 || got[0] != 2 {
		t.Errorf("Snapshot() = %v, want [2]", got)
	}
}

func TestBuffer_ConcurrentPush(t *testing.T) {
	buf := New[int](50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf.Push(i)
			}
		}()
	}
	wg.Wait()

	stats := buf.Stats()
	if stats.TotalPushed != 800 {
		t.Errorf("TotalPushed = %d, want 800", stats.TotalPushed)
	}
	if stats.Count != 50 {
		t.Errorf("Count = %d, want 50", stats.Count)
	}
	if stats.Evicted != 750 {
		t.Errorf("Evicted = %d, want 750", stats.Evicted)
	}
}
