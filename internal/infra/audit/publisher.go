// Package audit records audit events off the request path. Publish hands the
// event to a bounded queue and returns; a single worker writes batches to the
// audit repository. Events are dropped and counted when the queue is full.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/repository"
	"notification-dispatch/internal/resilience/circuitbreaker"
)

// Config controls buffering. Zero values take the defaults below.
type Config struct {
	// BufferSize bounds the queue. Default: 1000
	BufferSize int `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`
	// BatchSize triggers an immediate write. Default: 100
	BatchSize int `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	// FlushInterval writes a partial batch after this long. Default: 500ms
	FlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"500ms"`
	// StoreTimeout bounds each InsertBatch call. Default: 5s
	StoreTimeout time.Duration `env:"AUDIT_STORE_TIMEOUT" envDefault:"5s"`
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	return c
}

// Publisher is a fire-and-forget audit sink.
type Publisher struct {
	cfg    Config
	repo   repository.AuditRepository
	events chan entity.AuditEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewPublisher starts the background writer.
func NewPublisher(repo repository.AuditRepository, cfg Config) *Publisher {
	cfg = cfg.withDefaults()
	p := &Publisher{
		cfg:    cfg,
		repo:   repo,
		events: make(chan entity.AuditEvent, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues the event without blocking. The context is not retained.
func (p *Publisher) Publish(_ context.Context, event entity.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		droppedTotal.WithLabelValues("closed").Inc()
		return
	}
	select {
	case p.events <- event:
		publishedTotal.WithLabelValues(string(event.EventType)).Inc()
	default:
		droppedTotal.WithLabelValues("queue_full").Inc()
		slog.Warn("audit queue full, dropping event",
			slog.String("event_type", string(event.EventType)),
			slog.String("entity_id", event.EntityID))
	}
}

// BreakerStateChanged publishes CIRCUIT_BREAKER_OPENED when a breaker opens.
// It matches circuitbreaker.Config.OnStateChange.
func (p *Publisher) BreakerStateChanged(name string, from, to circuitbreaker.State) {
	if to != circuitbreaker.StateOpen {
		return
	}
	ev := entity.NewAuditEvent(entity.AuditCircuitBreakerOpened, "PROVIDER", name, "CIRCUIT_OPENED", time.Now())
	ev.Status = string(to)
	ev.Metadata["from"] = string(from)
	p.Publish(context.Background(), ev)
}

func (p *Publisher) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]entity.AuditEvent, 0, p.cfg.BatchSize)
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				p.write(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= p.cfg.BatchSize {
				p.write(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.write(batch)
				batch = batch[:0]
			}
		}
	}
}

func (p *Publisher) write(batch []entity.AuditEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.StoreTimeout)
	defer cancel()

	if err := p.repo.InsertBatch(ctx, batch); err != nil {
		droppedTotal.WithLabelValues("store_error").Add(float64(len(batch)))
		slog.Error("failed to write audit events",
			slog.Int("count", len(batch)),
			slog.Any("error", err))
		return
	}
	writtenTotal.Add(float64(len(batch)))
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
