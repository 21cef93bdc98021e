// Package parallel provides the worker pool used by the import pipeline.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines running import tasks.
//
// Each worker owns a queue and steals from the others when its own queue is empty.
// Callers of ExecuteAll and ForEach help execute queued work while they wait,
// so work items may themselves call ExecuteAll without deadlocking the pool.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
	next       atomic.Uint32
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one item from any queue other than skip. Returns nil if all are empty.
func (p *WorkerPool) steal(skip int) func() {
	start := int(p.next.Load())
	for k := range p.workers {
		i := (start + k) % p.workers
		if i == skip {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every work item and waits for all of them.
// Items that do not fit in the queues run on the calling goroutine.
// On a closed pool the items run sequentially on the caller.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(work)))
	finished := make(chan struct{})
	complete := func() {
		if remaining.Add(-1) == 0 {
			close(finished)
		}
	}

	for _, fn := range work {
		fn := fn
		wrapped := func() {
			defer complete()
			fn()
		}
		workerID := int(p.next.Add(1)) % p.workers
		select {
		case p.workQueues[workerID] <- wrapped:
		default:
			wrapped()
		}
	}

	p.wait(finished)
}

// wait helps with queued work until finished is closed.
func (p *WorkerPool) wait(finished chan struct{}) {
	for {
		select {
		case <-finished:
			return
		default:
		}
		if work := p.steal(-1); work != nil {
			work()
			continue
		}
		// everything left is already running somewhere
		<-finished
		return
	}
}

// ForEach calls fn(i) for every i in [0, n) on the pool and waits for completion.
func (p *WorkerPool) ForEach(n int, fn func(i int)) {
	work := make([]func(), n)
	for i := range work {
		i := i
		work[i] = func() { fn(i) }
	}
	p.ExecuteAll(work)
}

// Close stops accepting work, runs what is queued and stops all workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
