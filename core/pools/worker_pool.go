package pools

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrQueueFull   = errors.New("worker pool: queue full")
	ErrPoolClosed  = errors.New("worker pool: closed")
	ErrInvalidSize = errors.New("worker pool: workers and queue size must be positive")
)

// Task represents a unit of work
type Task interface {
	Process()
}

// TaskFunc adapts a plain function to Task
type TaskFunc func()

func (f TaskFunc) Process() { f() }

// WorkerPool is a fixed set of workers draining a bounded FIFO queue
type WorkerPool struct {
	numWorkers int

	mu       sync.Mutex
	queue    []Task // ring buffer
	head     int
	size     int
	signal   chan struct{} // one token per queued task
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksRejected  atomic.Uint64
	}
}

// NewWorkerPool starts numWorkers workers serving a queue of at most
// maxRequests pending tasks. numWorkers <= 0 selects runtime.NumCPU().
func NewWorkerPool(numWorkers, maxRequests int) (*WorkerPool, error) {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if maxRequests <= 0 {
		return nil, ErrInvalidSize
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
		queue:      make([]Task, maxRequests),
		signal:     make(chan struct{}, maxRequests),
		shutdown:   make(chan struct{}),
	}

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.run()
	}

	return pool, nil
}

// Submit appends task to the queue. It never blocks: a full queue returns
// ErrQueueFull and the caller applies backpressure.
func (p *WorkerPool) Submit(task Task) error {
	if task == nil {
		return errors.New("worker pool: nil task")
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.size == len(p.queue) {
		p.mu.Unlock()
		p.stats.tasksRejected.Add(1)
		return ErrQueueFull
	}
	p.queue[(p.head+p.size)%len(p.queue)] = task
	p.size++
	p.mu.Unlock()

	p.stats.tasksSubmitted.Add(1)

	// capacity equals the ring size, so this send cannot block
	p.signal <- struct{}{}
	return nil
}

// pop removes the oldest task, or returns nil when the queue is empty.
func (p *WorkerPool) pop() Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.size == 0 {
		return nil
	}
	task := p.queue[p.head]
	p.queue[p.head] = nil
	p.head = (p.head + 1) % len(p.queue)
	p.size--
	return task
}

// run is the main loop for a worker goroutine
func (p *WorkerPool) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdown:
			return
		case <-p.signal:
		}

		task := p.pop()
		if task == nil {
			continue
		}

		task.Process()
		p.stats.tasksCompleted.Add(1)
	}
}

// Close stops accepting tasks, wakes every waiting worker and waits for
// in-flight tasks to return. Tasks still queued are dropped and returned
// so the caller can release them.
func (p *WorkerPool) Close() []Task {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return nil
	}
	close(p.shutdown)
	p.mu.Unlock()

	p.wg.Wait()

	var dropped []Task
	for task := p.pop(); task != nil; task = p.pop() {
		dropped = append(dropped, task)
	}
	return dropped
}

// Len returns the number of queued tasks
func (p *WorkerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		QueueCapacity:  len(p.queue),
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		TasksRejected:  p.stats.tasksRejected.Load(),
		TasksPending:   uint64(p.Len()),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	QueueCapacity  int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksRejected  uint64
	TasksPending   uint64
}
