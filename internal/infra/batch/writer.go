// Package batch buffers persistence writes and flushes them in bulk from a
// single background worker per entity type.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Close when the writer was already closed.
var ErrClosed = errors.New("batch writer closed")

// Store persists items one at a time or in bulk.
type Store[T any] interface {
	Save(ctx context.Context, item T) error
	SaveAll(ctx context.Context, items []T) error
}

// Config controls batching. Zero values take the defaults below.
type Config struct {
	// Name labels logs and metrics, e.g. "email" or "push".
	Name string
	// BatchSize is the item count that triggers an immediate flush. Default: 50
	BatchSize int
	// QueueCapacity bounds the in-memory queue. Default: 1000
	QueueCapacity int
	// FlushInterval flushes a partial batch after this long. Default: 1s
	FlushInterval time.Duration
	// EnqueueTimeout is how long Enqueue waits for queue space before writing synchronously. Default: 100ms
	EnqueueTimeout time.Duration
	// StoreTimeout bounds each Save or SaveAll call. Default: 10s
	StoreTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
	return c
}

// Writer accumulates items and writes them through Store in batches.
//
// Enqueue never drops an item: when the queue stays full past EnqueueTimeout,
// or the writer is closed, the item is saved synchronously instead.
type Writer[T any] struct {
	cfg   Config
	store Store[T]
	queue chan T

	// mu guards closed. Enqueue holds the read lock while sending so that
	// Close cannot close the queue under a pending send.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter starts the background worker.
func NewWriter[T any](store Store[T], cfg Config) *Writer[T] {
	cfg = cfg.withDefaults()
	w := &Writer[T]{
		cfg:   cfg,
		store: store,
		queue: make(chan T, cfg.QueueCapacity),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue hands item to the worker, or saves it directly when the queue is full or closed.
// It returns an error only when a synchronous save fails.
func (w *Writer[T]) Enqueue(ctx context.Context, item T) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.saveSync(ctx, item, "closed")
	}

	select {
	case w.queue <- item:
		w.mu.RUnlock()
		queueDepth.WithLabelValues(w.cfg.Name).Set(float64(len(w.queue)))
		return nil
	default:
	}

	timer := time.NewTimer(w.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case w.queue <- item:
		w.mu.RUnlock()
		return nil
	case <-timer.C:
		w.mu.RUnlock()
		slog.Warn("batch queue full, writing synchronously",
			slog.String("writer", w.cfg.Name),
			slog.Int("capacity", w.cfg.QueueCapacity))
		return w.saveSync(ctx, item, "sync_overflow")
	case <-ctx.Done():
		w.mu.RUnlock()
		return w.saveSync(ctx, item, "sync_canceled")
	}
}

// saveSync writes one item outside the batch path. The caller's cancellation is
// ignored so that the item still reaches the store.
func (w *Writer[T]) saveSync(ctx context.Context, item T, reason string) error {
	fallbacksTotal.WithLabelValues(w.cfg.Name, reason).Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.StoreTimeout)
	defer cancel()

	if err := w.store.Save(ctx, item); err != nil {
		return fmt.Errorf("%s: synchronous save: %w", w.cfg.Name, err)
	}
	return nil
}

func (w *Writer[T]) run() {
	defer close(w.done)

	batch := make([]T, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func(trigger string) {
		if len(batch) == 0 {
			return
		}
		w.flush(batch, trigger)
		// the store may keep the slice, so start a fresh one
		batch = make([]T, 0, w.cfg.BatchSize)
		ticker.Reset(w.cfg.FlushInterval)
	}

	for {
		select {
		case item, ok := <-w.queue:
			if !ok {
				flush("shutdown")
				return
			}
			batch = append(batch, item)
			if len(batch) >= w.cfg.BatchSize {
				flush("size")
			}
		case <-ticker.C:
			flush("interval")
		}
		queueDepth.WithLabelValues(w.cfg.Name).Set(float64(len(w.queue)))
	}
}

// flush writes items in bulk and falls back to one Save per item when the bulk write fails.
func (w *Writer[T]) flush(items []T, trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	err := w.store.SaveAll(ctx, items)
	flushDuration.WithLabelValues(w.cfg.Name).Observe(time.Since(start).Seconds())
	batchSizes.WithLabelValues(w.cfg.Name).Observe(float64(len(items)))

	if err == nil {
		flushesTotal.WithLabelValues(w.cfg.Name, trigger).Inc()
		itemsFlushed.WithLabelValues(w.cfg.Name).Add(float64(len(items)))
		slog.Debug("batch flushed",
			slog.String("writer", w.cfg.Name),
			slog.String("trigger", trigger),
			slog.Int("items", len(items)))
		return
	}

	slog.Warn("bulk write failed, saving items individually",
		slog.String("writer", w.cfg.Name),
		slog.Int("items", len(items)),
		slog.Any("error", err))
	fallbacksTotal.WithLabelValues(w.cfg.Name, "per_item").Inc()

	saved := 0
	for i := range items {
		itemCtx, itemCancel := context.WithTimeout(context.Background(), w.cfg.StoreTimeout)
		if err := w.store.Save(itemCtx, items[i]); err != nil {
			slog.Error("failed to save item",
				slog.String("writer", w.cfg.Name),
				slog.Int("index", i),
				slog.Any("error", err))
		} else {
			saved++
		}
		itemCancel()
	}
	itemsFlushed.WithLabelValues(w.cfg.Name).Add(float64(saved))
}

// Close stops the queue, waits for the worker to drain and flush it, and returns.
// Enqueue calls after Close write synchronously. If ctx ends first, the worker
// keeps flushing in the background and ctx.Err() is returned.
func (w *Writer[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	slog.Info("draining batch writer",
		slog.String("writer", w.cfg.Name),
		slog.Int("queued", len(w.queue)))

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued items.
func (w *Writer[T]) Len() int {
	return len(w.queue)
}
