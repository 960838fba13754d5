package worker

import (
	"runtime"
	"sync"

	"go-ultrasound-classifier/internal/logger"
)

// Pool runs submitted jobs on a fixed number of goroutines. A pool of one
// worker executes jobs in submission order.
type Pool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once
	mu       sync.RWMutex
	closed   bool
}

// NewPool creates a pool; workers <= 0 means one per CPU.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	return &Pool{
		workers:  workers,
		jobQueue: make(chan func(), queueSize),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (p *Pool) Start() {
	p.start.Do(func() {
		for i := 0; i < p.workers; i++ {
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	for job := range p.jobQueue {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Worker job panicked")
		}
	}()
	job()
}

// Submit queues a job. It blocks while the queue is full and returns false
// once the pool is closed.
func (p *Pool) Submit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	p.jobQueue <- job
	return true
}

// TrySubmit queues a job without blocking. It returns false when the queue
// is full or the pool is closed.
func (p *Pool) TrySubmit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.wg.Done()
		return false
	}
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Close() {
	p.stop.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobQueue)
		p.mu.Unlock()
	})
	p.wg.Wait()
}
