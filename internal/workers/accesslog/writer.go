package accesslog

import (
	"context"
	"sync"
	"time"

	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/logger"
	"github.com/klirineu/offertrack-web/internal/ports"
)

// writeTimeout bounds a single insert so a slow database cannot pin a worker.
const writeTimeout = 5 * time.Second

// Writer persists access log entries off the request path. Entries are
// best-effort: a full queue or a failed insert drops the entry.
type Writer struct {
	repo    ports.AccessLogRepository
	entries chan domain.AccessLogEntry
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(repo ports.AccessLogRepository, queueSize int) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Writer{repo: repo, entries: make(chan domain.AccessLogEntry, queueSize)}
}

// Enqueue never blocks. It reports false when the entry was dropped.
func (w *Writer) Enqueue(e domain.AccessLogEntry) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.entries <- e:
		return true
	default:
		return false
	}
}

// Run starts concurrency workers. With concurrency < 1 entries are written
// by a single worker.
func (w *Writer) Run(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go func(idx int) {
			defer w.wg.Done()
			for e := range w.entries {
				w.write(ctx, idx, e)
			}
		}(i)
	}
}

func (w *Writer) write(ctx context.Context, idx int, e domain.AccessLogEntry) {
	// Entries queued before shutdown are still flushed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := w.repo.AppendAccessLog(ctx, e); err != nil {
		logger.Error("access log worker %d: site=%s: %v", idx, e.ProtectedSiteID, err)
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.entries)
	w.mu.Unlock()
	w.wg.Wait()
}
