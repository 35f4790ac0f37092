package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of async delivery work.
type Task func(ctx context.Context)

// Executor runs tasks on a fixed set of workers fed by a bounded queue.
// Submit never blocks.
type Executor struct {
	name   string
	queue  chan Task
	group  errgroup.Group
	mu     sync.RWMutex
	closed bool

	// baseCtx is handed to every task and cancelled only when Shutdown gives up waiting.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewExecutor starts workers goroutines draining a queue of the given capacity.
func NewExecutor(name string, workers, capacity int) *Executor {
	if workers <= 0 {
		workers = 10
	}
	if capacity <= 0 {
		capacity = 100
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		name:    name,
		queue:   make(chan Task, capacity),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	for range workers {
		e.group.Go(func() error {
			for task := range e.queue {
				executorQueueDepth.WithLabelValues(e.name).Set(float64(len(e.queue)))
				e.execute(task)
			}
			return nil
		})
	}
	return e
}

// Submit queues task. It returns ErrQueueFull when the queue has no free slot
// and ErrExecutorClosed after Shutdown.
func (e *Executor) Submit(task Task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		deliveryRejectedTotal.WithLabelValues(e.name, "closed").Inc()
		return ErrExecutorClosed
	}
	select {
	case e.queue <- task:
		executorQueueDepth.WithLabelValues(e.name).Set(float64(len(e.queue)))
		return nil
	default:
		deliveryRejectedTotal.WithLabelValues(e.name, "queue_full").Inc()
		return ErrQueueFull
	}
}

func (e *Executor) execute(task Task) {
	executorActiveTasks.WithLabelValues(e.name).Inc()
	defer executorActiveTasks.WithLabelValues(e.name).Dec()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in delivery task",
				slog.String("executor", e.name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	task(e.baseCtx)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to finish.
// If ctx ends first, running tasks see their context cancelled.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		slog.Info("delivery executor stopped", slog.String("executor", e.name))
		return nil
	case <-ctx.Done():
		e.cancel()
		slog.Warn("delivery executor shutdown timed out",
			slog.String("executor", e.name),
			slog.Int("pending", len(e.queue)))
		return fmt.Errorf("shutdown %s executor: %w", e.name, ctx.Err())
	}
}

// IsRejection reports whether err came from Submit refusing a task.
func IsRejection(err error) bool {
	return errors.Is(err, ErrQueueFull) || errors.Is(err, ErrExecutorClosed)
}
