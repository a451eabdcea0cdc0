package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/quickscout/internal/types"
)

func tasks(n int) []types.Task {
	out := make([]types.Task, n)
	for i := range out {
		out[i] = types.Task{Location: types.Location(fmt.Sprintf("56%04d", i+1))}
	}
	return out
}

// --- LocationQueue Tests ---

func TestLocationQueueFIFO(t *testing.T) {
	q := NewLocationQueue(tasks(3))

	if q.Len() != 3 {
		t.Fatalf("expected 3 tasks, got %d", q.Len())
	}
	for _, want := range []types.Location{"560001", "560002", "560003"} {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("expected %s, queue empty", want)
		}
		if got.Location != want {
			t.Errorf("expected %s, got %s", want, got.Location)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected 0, got %d", q.Len())
	}
}

func TestLocationQueueDoesNotAliasInput(t *testing.T) {
	in := tasks(2)
	q := NewLocationQueue(in)
	in[0].Location = "999999"

	got, _ := q.TryPop()
	if got.Location != "560001" {
		t.Errorf("queue should own its copy, got %s", got.Location)
	}
}

func TestLocationQueueClose(t *testing.T) {
	q := NewLocationQueue(tasks(5))
	q.TryPop()
	q.Close()

	if !q.IsClosed() {
		t.Error("expected closed")
	}
	if _, ok := q.TryPop(); ok {
		t.Error("closed queue handed out a task")
	}
	if q.Len() != 0 {
		t.Errorf("closed queue should report 0, got %d", q.Len())
	}
	if got := len(q.Snapshot()); got != 4 {
		t.Errorf("expected 4 unclaimed tasks in snapshot, got %d", got)
	}
}

func TestLocationQueueNoDuplicateClaims(t *testing.T) {
	const n = 500
	q := NewLocationQueue(tasks(n))

	var (
		mu     sync.Mutex
		claims = make(map[types.Location]int)
		wg     sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := q.TryPop()
				if !ok {
					return
				}
				mu.Lock()
				claims[task.Location]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claims) != n {
		t.Fatalf("expected %d distinct claims, got %d", n, len(claims))
	}
	for loc, c := range claims {
		if c != 1 {
			t.Errorf("location %s claimed %d times", loc, c)
		}
	}
}

// --- ResultQueue Tests ---

func TestResultQueueOrderAndSentinel(t *testing.T) {
	q := NewResultQueue()
	q.Push(types.ResultBatch{Location: "560001"})
	q.Push(types.ResultBatch{Location: "560002"})
	q.Close()

	for _, want := range []types.Location{"560001", "560002"} {
		b, ok := q.Take()
		if !ok || b.Location != want {
			t.Fatalf("expected %s, got %s (ok=%v)", want, b.Location, ok)
		}
	}
	if _, ok := q.Take(); ok {
		t.Error("expected sentinel after draining")
	}
	if _, ok := q.Take(); ok {
		t.Error("sentinel should be sticky")
	}
}

func TestResultQueuePushAfterCloseIsDropped(t *testing.T) {
	q := NewResultQueue()
	q.Close()
	q.Close()
	q.Push(types.ResultBatch{Location: "560001"})

	if q.Len() != 0 || q.Dropped() != 1 {
		t.Errorf("expected batch dropped, len=%d dropped=%d", q.Len(), q.Dropped())
	}
}

func TestResultQueueTakeBlocksUntilPush(t *testing.T) {
	q := NewResultQueue()
	got := make(chan types.ResultBatch, 1)
	go func() {
		b, _ := q.Take()
		got <- b
	}()

	select {
	case <-got:
		t.Fatal("take returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(types.ResultBatch{Location: "560007"})
	select {
	case b := <-got:
		if b.Location != "560007" {
			t.Errorf("unexpected batch %+v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("take did not wake up")
	}
}

func TestResultQueueManyProducers(t *testing.T) {
	q := NewResultQueue()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(types.ResultBatch{Worker: p})
			}
		}()
	}

	done := make(chan int)
	go func() {
		n := 0
		for {
			if _, ok := q.Take(); !ok {
				done <- n
				return
			}
			n++
		}
	}()

	wg.Wait()
	q.Close()
	if n := <-done; n != 800 {
		t.Errorf("expected 800 batches, got %d", n)
	}
}

func BenchmarkLocationQueueTryPop(b *testing.B) {
	q := NewLocationQueue(tasks(b.N))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.TryPop()
	}
}
