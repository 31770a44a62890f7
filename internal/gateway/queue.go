// Package gateway exposes the HTTP API the web dashboard talks to: bridge
// status plus a small task queue that feeds prompts to an attached decision
// loop.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vexlio/drover/api/schemas"
)

// Runner executes one task. The queue owns the task's lifecycle transitions;
// the runner only does the work and reports the outcome.
type Runner interface {
	Run(ctx context.Context, task *schemas.Task) (result string, err error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, task *schemas.Task) (string, error)

func (f RunnerFunc) Run(ctx context.Context, task *schemas.Task) (string, error) {
	return f(ctx, task)
}

// Queue holds dashboard-submitted tasks and drives them through an attached
// runner one at a time. Without a runner, tasks simply accumulate in the
// queued state.
type Queue struct {
	logger *zap.Logger
	runner Runner
	store  *Store

	mu      sync.Mutex
	tasks   map[string]*schemas.Task
	order   []string
	cancels map[string]context.CancelFunc

	pending chan string
}

// NewQueue creates a task queue. runner and store may both be nil: a nil
// runner leaves tasks queued, a nil store skips history persistence.
func NewQueue(runner Runner, store *Store, size int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		logger:  logger.Named("queue"),
		runner:  runner,
		store:   store,
		tasks:   make(map[string]*schemas.Task),
		cancels: make(map[string]context.CancelFunc),
		pending: make(chan string, size),
	}
}

// Enqueue registers a new task and schedules it for execution. It fails when
// the pending buffer is full.
func (q *Queue) Enqueue(prompt string, maxSteps int) (*schemas.Task, error) {
	task := &schemas.Task{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		MaxSteps:  maxSteps,
		Status:    schemas.TaskQueued,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	select {
	case q.pending <- task.ID:
	default:
		q.mu.Unlock()
		return nil, fmt.Errorf("task queue is full (%d pending)", cap(q.pending))
	}
	q.tasks[task.ID] = task
	q.order = append(q.order, task.ID)
	q.mu.Unlock()

	q.persist(task)
	q.logger.Info("Task enqueued", zap.String("task_id", task.ID))
	return task.Clone(), nil
}

// Get returns a copy of the task with the given id.
func (q *Queue) Get(id string) (*schemas.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[id]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// List returns copies of all known tasks in submission order.
func (q *Queue) List() []*schemas.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*schemas.Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.tasks[id].Clone())
	}
	return out
}

// Depth returns the number of tasks waiting to run.
func (q *Queue) Depth() int {
	return len(q.pending)
}

// Stop cancels a running task or retires a queued one. Stopping a finished
// task is a no-op.
func (q *Queue) Stop(id string) (*schemas.Task, bool) {
	q.mu.Lock()
	task, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return nil, false
	}
	switch task.Status {
	case schemas.TaskRunning:
		if cancel, ok := q.cancels[id]; ok {
			cancel()
		}
	case schemas.TaskQueued:
		now := time.Now().UTC()
		task.Status = schemas.TaskStopped
		task.FinishedAt = &now
	}
	clone := task.Clone()
	q.mu.Unlock()

	q.persist(clone)
	return clone, true
}

// Run processes tasks until ctx is cancelled. It is the single worker; tasks
// execute strictly one at a time against the shared browser session.
func (q *Queue) Run(ctx context.Context) error {
	if q.runner == nil {
		q.logger.Warn("No runner attached, tasks will stay queued")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-q.pending:
			q.execute(ctx, id)
		}
	}
}

func (q *Queue) execute(ctx context.Context, id string) {
	q.mu.Lock()
	task, ok := q.tasks[id]
	if !ok || task.Status != schemas.TaskQueued {
		// Stopped while still in the buffer.
		q.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	task.Status = schemas.TaskRunning
	task.StartedAt = &now
	runCtx, cancel := context.WithCancel(ctx)
	q.cancels[id] = cancel
	snapshot := task.Clone()
	q.mu.Unlock()

	q.persist(snapshot)
	q.logger.Info("Task started", zap.String("task_id", id))

	result, err := q.runner.Run(runCtx, snapshot)
	cancel()

	q.mu.Lock()
	delete(q.cancels, id)
	finished := time.Now().UTC()
	task.FinishedAt = &finished
	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		task.Status = schemas.TaskStopped
	case err != nil:
		task.Status = schemas.TaskFailed
		task.Error = err.Error()
	default:
		task.Status = schemas.TaskCompleted
		task.Result = result
	}
	done := task.Clone()
	q.mu.Unlock()

	q.persist(done)
	q.logger.Info("Task finished",
		zap.String("task_id", id),
		zap.String("status", string(done.Status)))
}

func (q *Queue) persist(task *schemas.Task) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveTask(task); err != nil {
		q.logger.Error("Failed to persist task", zap.String("task_id", task.ID), zap.Error(err))
	}
}
