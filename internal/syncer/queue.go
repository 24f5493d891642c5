package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Task is one unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// DoneFunc observes every finished task.
type DoneFunc func(task Task, err error, elapsed time.Duration)

// Queue is an unbounded FIFO drained by a single worker goroutine, so tasks
// run one at a time in enqueue order. Enqueue never blocks.
type Queue struct {
	onDone DoneFunc

	mu      sync.Mutex
	tasks   []Task
	busy    bool
	closed  bool
	idle    chan struct{} // nil while idle, closed when the queue drains
	wake    chan struct{}
	stop    chan struct{}
	started bool
	wg      sync.WaitGroup
}

// NewQueue creates a stopped queue. onDone may be nil.
func NewQueue(onDone DoneFunc) *Queue {
	return &Queue{
		onDone: onDone,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start launches the worker. Tasks run with ctx; the worker exits when ctx
// is done or Close is called. Calling Start again has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go q.run(ctx)
}

// Enqueue appends task and reports whether it was accepted. Tasks are
// rejected after Close.
func (q *Queue) Enqueue(task Task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	if q.idle == nil {
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued tasks plus the one running, if any.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tasks)
	if q.busy {
		n++
	}
	return n
}

// Flush blocks until the queue is empty and no task is running.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush queue: %w", ctx.Err())
	}
}

// Close stops the worker after the running task finishes. Queued tasks are
// dropped. Close is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	close(q.stop)
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	q.tasks = nil
	q.markIdleLocked()
	q.mu.Unlock()
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		task, ok := q.next()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			case <-ctx.Done():
				q.abandon()
				return
			}
		}

		select {
		case <-q.stop:
			q.finish()
			return
		default:
		}

		start := time.Now()
		err := runTask(ctx, task)
		if q.onDone != nil {
			q.onDone(task, err, time.Since(start))
		}
		q.finish()
	}
}

func (q *Queue) next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	task := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	q.busy = true
	return task, true
}

func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.busy = false
	if len(q.tasks) == 0 {
		q.markIdleLocked()
	}
}

// abandon marks the queue closed after the worker context ends, so later
// tasks are rejected instead of waiting for a worker that is gone.
func (q *Queue) abandon() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.tasks = nil
	q.markIdleLocked()
}

func (q *Queue) markIdleLocked() {
	if q.idle != nil {
		close(q.idle)
		q.idle = nil
	}
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
