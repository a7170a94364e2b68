package worker

import (
	"sync"
)

type task func()

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	jobs    chan task
	stopped bool
	onDepth func(int)
}

type Option func(*Pool)

// WithDepthObserver is called with the queue length after every enqueue and dequeue.
func WithDepthObserver(fn func(int)) Option {
	return func(p *Pool) { p.onDepth = fn }
}

func NewPool(n, queue int, opts ...Option) *Pool {
	if n <= 0 {
		n = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	p := &Pool{jobs: make(chan task, queue), onDepth: func(int) {}}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.onDepth(len(p.jobs))
				job()
			}
		}()
	}
	return p
}

// Submit enqueues f without blocking. It returns false when the queue is full
// or the pool has been stopped.
func (p *Pool) Submit(f task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobs <- f:
		p.onDepth(len(p.jobs))
		return true
	default:
		return false
	}
}

// Stop drains queued tasks and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
