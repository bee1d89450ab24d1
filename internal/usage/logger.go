package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gometer/internal/metrics"
)

const (
	defaultBufferSize    = 1000
	defaultFlushInterval = 5 * time.Second

	flushTimeout = 30 * time.Second
	drainTimeout = 10 * time.Second
)

// LoggerInterface is implemented by Logger and NoopLogger.
type LoggerInterface interface {
	Write(event *UsageEvent)
	Config() Config
	Close() error
}

// Logger provides async buffered persistence of usage events with batch
// writes. Events are queued on a channel and flushed to the store either when
// the batch fills or at regular intervals. A persistence failure never rolls
// back or blocks the already-completed upstream call.
type Logger struct {
	store         EventStore
	config        Config
	buffer        chan *UsageEvent
	done          chan struct{}
	wg            sync.WaitGroup
	writes        sync.WaitGroup // tracks in-flight Write calls
	flushInterval time.Duration
	closed        atomic.Bool
}

// NewLogger creates an async buffered Logger and starts its flush goroutine.
func NewLogger(store EventStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	l := &Logger{
		store:         store,
		config:        cfg,
		buffer:        make(chan *UsageEvent, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues a usage event for async persistence without blocking. When the
// buffer is full or the logger is closed the event is dropped; the drop is
// counted and logged but never propagated to the caller.
func (l *Logger) Write(event *UsageEvent) {
	if event == nil || l.closed.Load() {
		return
	}

	// Registering the write keeps Close from closing the buffer underneath
	// us; the second closed check covers the race with Close's Swap.
	l.writes.Add(1)
	defer l.writes.Done()
	if l.closed.Load() {
		return
	}

	select {
	case l.buffer <- event:
	default:
		metrics.UsageEventsDropped.Inc()
		requestID := event.RequestID
		if requestID == "" {
			requestID = "unknown"
		}
		slog.Warn("usage event buffer full, dropping event",
			"request_id", requestID,
			"model", event.Model,
		)
	}
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close stops accepting events, drains the buffer and closes the store.
// It is idempotent and safe to call from multiple goroutines.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.writes.Wait()
	close(l.done)
	l.wg.Wait()

	return l.store.Close()
}

// flushLoop accumulates events into a batch and writes it out when the batch
// reaches BatchFlushThreshold or the flush interval elapses.
func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*UsageEvent, 0, BatchFlushThreshold)

	for {
		select {
		case event := <-l.buffer:
			batch = append(batch, event)
			if len(batch) >= BatchFlushThreshold {
				l.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = batch[:0]
			}

		case <-l.done:
			l.drain(batch)
			return
		}
	}
}

// drain empties the buffer after shutdown, writes the final batch and flushes
// the store. Close has already set the closed flag, so no new sends can race
// with closing the buffer channel here.
func (l *Logger) drain(batch []*UsageEvent) {
	close(l.buffer)
	for event := range l.buffer {
		batch = append(batch, event)
	}
	l.flushBatch(batch)

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := l.store.Flush(ctx); err != nil {
		slog.Error("failed to flush usage store", "error", err)
	}
}

func (l *Logger) flushBatch(batch []*UsageEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage event batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger satisfies LoggerInterface when usage persistence is disabled.
type NoopLogger struct{}

func (l *NoopLogger) Write(_ *UsageEvent) {}

func (l *NoopLogger) Config() Config {
	return Config{Enabled: false}
}

func (l *NoopLogger) Close() error {
	return nil
}
