package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a unit of detached background work. The pool owns the context;
// failures are logged, never returned to the submitter.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs detached tasks on a fixed set of workers with a bounded queue.
// It exists so state transitions never hold a lock across I/O: capture,
// persistence and remote push are all submitted here fire-and-forget.
type Pool struct {
	tasks   chan Task
	workers int
	log     zerolog.Logger
	wg      sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

func NewPool(workers, queueSize int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		tasks:   make(chan Task, queueSize),
		workers: workers,
		log:     log,
		stopped: make(chan struct{}),
	}
}

// Start launches the workers. In-flight tasks run to completion on shutdown
// (abandoned, not cancelled mid-step).
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopped:
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if err := task.Run(ctx); err != nil {
				p.log.Error().Err(err).Str("task", task.Name).Int("worker", id).
					Msg("background task failed")
			}
		}
	}
}

// Submit enqueues a task without blocking. A full queue drops the task and
// logs it; callers must already tolerate capture/persistence loss.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		p.log.Warn().Str("task", task.Name).Msg("worker queue full, task dropped")
		return false
	}
}

// Stop signals workers to exit once the current task finishes and waits for
// them. Queued but unstarted tasks are abandoned.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
	p.wg.Wait()
}
