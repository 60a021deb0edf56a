package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
)

// Needs a disposable database: ANTICLONE_TEST_DATABASE_URL=postgres://...
func connectTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("ANTICLONE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ANTICLONE_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := Connect(ctx, url, 20)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestConcurrentRecordDetection(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()

	site, err := db.CreateSite(ctx, domain.ProtectedSite{
		ID:             uuid.New(),
		OriginalDomain: "https://brand.example",
		Countermeasure: domain.Countermeasure{Type: domain.ActionRedirect, Target: "https://brand.example"},
	})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.RecordDetection(ctx, site.ID, "https://clone.example/p", "clone.example", time.Now()); err != nil {
				t.Errorf("RecordDetection: %v", err)
			}
		}()
	}
	wg.Wait()

	rows, err := db.ListDetections(ctx, site.ID)
	if err != nil {
		t.Fatalf("ListDetections: %v", err)
	}
	if len(rows) != 1 || rows[0].AccessCount != n {
		t.Fatalf("rows = %+v, want one row with count %d", rows, n)
	}
}

func TestFindByIDPrefix(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()

	id := uuid.New()
	if _, err := db.CreateSite(ctx, domain.ProtectedSite{ID: id, OriginalDomain: "brand.example", Countermeasure: domain.Countermeasure{Type: domain.ActionNone}}); err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	got, err := db.FindByIDPrefix(ctx, id.String()[:8])
	if err != nil {
		t.Fatalf("FindByIDPrefix: %v", err)
	}
	found := false
	for _, s := range got {
		if s.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("site %s not found by prefix", id)
	}
}
