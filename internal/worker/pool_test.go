package worker

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewPool(t *testing.T) {
	pool := NewPool(4, 0)
	if pool == nil {
		t.Fatal("Expected non-nil pool")
	}
	if pool.workers != 4 {
		t.Errorf("Expected 4 workers, got %d", pool.workers)
	}
	if cap(pool.jobQueue) != 8 {
		t.Errorf("Expected default queue of 8, got %d", cap(pool.jobQueue))
	}
}

func TestNewPool_ZeroWorkers(t *testing.T) {
	pool := NewPool(0, 0)
	if pool.workers <= 0 {
		t.Errorf("Expected workers to default to CPU count, got %d", pool.workers)
	}
}

func TestPool_SubmitAndWait(t *testing.T) {
	pool := NewPool(2, 0)
	pool.Start()
	defer pool.Close()

	var counter int64
	for i := 0; i < 50; i++ {
		if !pool.Submit(func() { atomic.AddInt64(&counter, 1) }) {
			t.Fatal("Submit rejected on open pool")
		}
	}
	pool.Wait()

	if counter != 50 {
		t.Errorf("Expected counter to be 50, got %d", counter)
	}
}

func TestPool_SingleWorkerKeepsOrder(t *testing.T) {
	pool := NewPool(1, 16)
	pool.Start()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		pool.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	pool.Close()

	for i, v := range order {
		if v != i {
			t.Fatalf("Expected job %d at position %d, got %d", i, i, v)
		}
	}
	if len(order) != 20 {
		t.Errorf("Expected 20 jobs, got %d", len(order))
	}
}

func TestPool_SurvivesPanics(t *testing.T) {
	pool := NewPool(1, 0)
	pool.Start()

	var ran int64
	pool.Submit(func() { panic("boom") })
	pool.Submit(func() { atomic.AddInt64(&ran, 1) })
	pool.Close()

	if ran != 1 {
		t.Errorf("Expected job after panic to run, ran=%d", ran)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(1, 0)
	pool.Start()
	pool.Close()
	pool.Close() // idempotent

	if pool.Submit(func() {}) {
		t.Error("Expected Submit to fail after Close")
	}
}

func TestPool_TrySubmitFullQueue(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Start()

	started := make(chan struct{})
	release := make(chan struct{})
	if !pool.TrySubmit(func() {
		close(started)
		<-release
	}) {
		t.Fatal("TrySubmit rejected on empty pool")
	}
	<-started

	var ran int64
	if !pool.TrySubmit(func() { atomic.AddInt64(&ran, 1) }) {
		t.Fatal("TrySubmit rejected with a free queue slot")
	}
	if pool.TrySubmit(func() { atomic.AddInt64(&ran, 10) }) {
		t.Error("Expected TrySubmit to fail on a full queue")
	}

	close(release)
	pool.Close()

	if ran != 1 {
		t.Errorf("Expected only the queued job to run, ran=%d", ran)
	}
	if pool.TrySubmit(func() {}) {
		t.Error("Expected TrySubmit to fail after Close")
	}
}
