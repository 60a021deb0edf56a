package accesslog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
)

type recordingRepo struct {
	mu      sync.Mutex
	entries []domain.AccessLogEntry
	fail    bool
	block   chan struct{}
}

func (r *recordingRepo) AppendAccessLog(ctx context.Context, e domain.AccessLogEntry) error {
	if r.block != nil {
		<-r.block
	}
	if r.fail {
		return errors.New("insert failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingRepo) ListAccessLogs(ctx context.Context, siteID uuid.UUID, limit int) ([]domain.AccessLogEntry, error) {
	return nil, nil
}

func TestWriterFlushesOnClose(t *testing.T) {
	repo := &recordingRepo{}
	w := New(repo, 64)
	w.Run(context.Background(), 3)

	for i := 0; i < 50; i++ {
		if !w.Enqueue(domain.AccessLogEntry{CloneURL: "https://clone.example/"}) {
			t.Fatalf("Enqueue %d dropped", i)
		}
	}
	w.Close()

	if len(repo.entries) != 50 {
		t.Fatalf("written = %d, want 50", len(repo.entries))
	}
	if w.Enqueue(domain.AccessLogEntry{}) {
		t.Fatalf("Enqueue after Close should report false")
	}
	w.Close()
}

func TestWriterDropsWhenFull(t *testing.T) {
	repo := &recordingRepo{block: make(chan struct{})}
	w := New(repo, 1)

	if !w.Enqueue(domain.AccessLogEntry{}) {
		t.Fatalf("first Enqueue should fit in the queue")
	}
	if w.Enqueue(domain.AccessLogEntry{}) {
		t.Fatalf("second Enqueue should be dropped while the queue is full")
	}
	w.Run(context.Background(), 1)
	close(repo.block)
	w.Close()
	if len(repo.entries) != 1 {
		t.Fatalf("written = %d, want 1", len(repo.entries))
	}
}

func TestWriterSurvivesRepositoryErrors(t *testing.T) {
	repo := &recordingRepo{fail: true}
	w := New(repo, 4)
	w.Run(context.Background(), 1)
	w.Enqueue(domain.AccessLogEntry{})
	w.Enqueue(domain.AccessLogEntry{})
	w.Close()
	if len(repo.entries) != 0 {
		t.Fatalf("expected nothing recorded on failure")
	}
}
