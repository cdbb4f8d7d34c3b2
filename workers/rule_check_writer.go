// workers/rule_check_writer.go
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"password-game/models"
)

// RuleCheckStore persists one audit row.
type RuleCheckStore interface {
	Insert(ctx context.Context, rec *models.RuleCheck) error
}

// RuleCheckWriter persists audit rows off the request path. Writes are best
// effort: a full queue or a failed insert is logged and the row dropped.
type RuleCheckWriter struct {
	store   RuleCheckStore
	queue   chan *models.RuleCheck
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRuleCheckWriter(store RuleCheckStore, buffer int, logger *slog.Logger) *RuleCheckWriter {
	if buffer <= 0 {
		buffer = 256
	}
	return &RuleCheckWriter{
		store:   store,
		queue:   make(chan *models.RuleCheck, buffer),
		timeout: 5 * time.Second,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Enqueue never blocks. Rows offered after Close are dropped.
func (w *RuleCheckWriter) Enqueue(rec *models.RuleCheck) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("rule_check_dropped", "reason", "writer_closed", "level", rec.Level)
		return false
	}
	select {
	case w.queue <- rec:
		return true
	default:
		w.logger.Warn("rule_check_dropped", "reason", "queue_full", "level", rec.Level)
		return false
	}
}

// Start consumes the queue until Close is called.
func (w *RuleCheckWriter) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case rec := <-w.queue:
				w.write(rec)
			case <-w.done:
				w.drain()
				return
			}
		}
	}()
}

// Close stops intake, persists what is still queued and waits for the
// consumer to exit. Call it after the HTTP server has stopped serving.
func (w *RuleCheckWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *RuleCheckWriter) drain() {
	for {
		select {
		case rec := <-w.queue:
			w.write(rec)
		default:
			return
		}
	}
}

func (w *RuleCheckWriter) write(rec *models.RuleCheck) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.Insert(ctx, rec); err != nil {
		w.logger.Error("rule_check_persist_failed", "err", err)
	}
}
