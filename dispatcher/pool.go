package dispatcher

import (
	"github.com/umd-lib/plastron-go/internal/plog"
)

// WorkerPool is a bounded-concurrency task executor, adapted from
// worker.Pool for the dispatcher's submission model: the original
// worker.Queue is a polling dequeue, suited to a persisted job queue, but
// the dispatcher's jobs arrive as inbox-watcher callbacks and an executor
// (the analogue of the original Python's ThreadPoolExecutor) is a closer
// fit — each accepted job is a task
// submitted directly, not polled for.
type WorkerPool struct {
	tasks  chan func()
	done   chan struct{}
	logger *plog.ContextLogger
}

// NewWorkerPool starts n goroutines pulling from an internal task channel.
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{
		tasks:  make(chan func()),
		done:   make(chan struct{}),
		logger: plog.New(nil, map[string]interface{}{"component": "dispatcher_pool"}),
	}
	for i := 0; i < n; i++ {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task()
		case <-p.done:
			return
		}
	}
}

// Submit enqueues fn to run on the next free worker. It blocks if every
// worker is currently busy, providing the pool's bounded concurrency.
func (p *WorkerPool) Submit(fn func()) {
	select {
	case p.tasks <- fn:
	case <-p.done:
	}
}

// Stop signals every worker to exit once its current task (if any)
// completes; in-flight tasks are not interrupted, but no new task is
// accepted after Stop returns.
func (p *WorkerPool) Stop() {
	close(p.done)
}
