package audio

import (
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	a := &Item{PCM: []byte{1}}
	b := &Item{PCM: []byte{2}}
	q.Put(a)
	q.Put(b)

	if got := q.Get(); got != a {
		t.Error("first Get did not return first item")
	}
	if got := q.Get(); got != b {
		t.Error("second Get did not return second item")
	}
}

func TestQueue_GetBlocksUntilPut(t *testing.T) {
	q := NewQueue()
	got := make(chan *Item)
	go func() { got <- q.Get() }()

	select {
	case <-got:
		t.Fatal("Get returned before Put")
	case <-time.After(20 * time.Millisecond):
	}

	want := &Item{}
	q.Put(want)
	select {
	case item := <-got:
		if item != want {
			t.Error("wrong item")
		}
	case <-time.After(time.Second):
		t.Fatal("Get never returned")
	}
}

func TestQueue_JoinWaitsForTaskDone(t *testing.T) {
	q := NewQueue()
	q.Put(&Item{})
	q.Put(&Item{})

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	q.Get()
	q.TaskDone()
	select {
	case <-joined:
		t.Fatal("Join returned with one task outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	q.Get()
	q.TaskDone()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join never returned")
	}
}

func TestQueue_JoinReturnsWhenEmpty(t *testing.T) {
	q := NewQueue()
	done := make(chan struct{})
	go func() {
		q.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Join blocked on an empty queue")
	}
}

func TestQueue_FlushUnblocksJoin(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Put(&Item{})
	}

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	q.Flush()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Flush did not unblock Join")
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after Flush", q.Len())
	}
	if q.Unfinished() != 0 {
		t.Errorf("Unfinished = %d after Flush", q.Unfinished())
	}
}

func TestQueue_FlushKeepsInFlightTask(t *testing.T) {
	q := NewQueue()
	q.Put(&Item{})
	q.Put(&Item{})

	q.Get() // in flight at the worker
	q.Flush()

	// The in-flight item still counts until the worker calls TaskDone.
	if q.Unfinished() != 1 {
		t.Fatalf("Unfinished = %d, want 1", q.Unfinished())
	}
	q.TaskDone()
	if q.Unfinished() != 0 {
		t.Errorf("Unfinished = %d, want 0", q.Unfinished())
	}
}

func TestQueue_NilSentinel(t *testing.T) {
	q := NewQueue()
	q.Put(nil)
	if got := q.Get(); got != nil {
		t.Error("sentinel not returned as nil")
	}
	q.TaskDone()
}
