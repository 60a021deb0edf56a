package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/ports"
	"github.com/klirineu/offertrack-web/internal/shortid"
)

type fakeSites struct {
	sites []domain.ProtectedSite
	err   error
}

func (f *fakeSites) FindByIDPrefix(ctx context.Context, prefix string) ([]domain.ProtectedSite, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.ProtectedSite
	for _, s := range f.sites {
		if strings.HasPrefix(strings.ReplaceAll(s.ID.String(), "-", ""), prefix) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSites) GetSite(ctx context.Context, id uuid.UUID) (domain.ProtectedSite, error) {
	for _, s := range f.sites {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.ProtectedSite{}, ErrNotFound
}

func (f *fakeSites) ListSites(ctx context.Context) ([]domain.ProtectedSite, error) {
	return f.sites, nil
}

func (f *fakeSites) CreateSite(ctx context.Context, s domain.ProtectedSite) (domain.ProtectedSite, error) {
	f.sites = append(f.sites, s)
	return s, nil
}

type ledgerKey struct {
	site uuid.UUID
	url  string
}

type fakeLedger struct {
	mu   sync.Mutex
	rows map[ledgerKey]*domain.CloneDetection
	err  error
	next int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[ledgerKey]*domain.CloneDetection{}}
}

func (f *fakeLedger) RecordDetection(ctx context.Context, siteID uuid.UUID, cloneURL, cloneDomain string, at time.Time) (domain.CloneDetection, error) {
	if f.err != nil {
		return domain.CloneDetection{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := ledgerKey{siteID, cloneURL}
	row, ok := f.rows[k]
	if !ok {
		f.next++
		row = &domain.CloneDetection{ID: f.next, ProtectedSiteID: siteID, CloneURL: cloneURL, CloneDomain: cloneDomain, FirstSeenAt: at}
		f.rows[k] = row
	}
	row.AccessCount++
	row.LastAccessAt = at
	return *row, nil
}

func (f *fakeLedger) ListDetections(ctx context.Context, siteID uuid.UUID) ([]domain.CloneDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CloneDetection
	for k, v := range f.rows {
		if k.site == siteID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeLedger) count(site uuid.UUID, url string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[ledgerKey{site, url}]; ok {
		return r.AccessCount
	}
	return 0
}

type fakeSink struct {
	mu      sync.Mutex
	entries []domain.AccessLogEntry
	full    bool
}

func (f *fakeSink) Enqueue(e domain.AccessLogEntry) bool {
	if f.full {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return true
}

var brand = domain.ProtectedSite{
	ID:             uuid.MustParse("0a1b2c3d-0000-4000-8000-000000000001"),
	OriginalDomain: "https://brand.example",
	Countermeasure: domain.Countermeasure{Type: domain.ActionRedirect, Target: "https://brand.example"},
}

func newTestService(sites *fakeSites, ledger *fakeLedger, sink *fakeSink) *Service {
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return New(sites, ledger, sink).WithClock(func() time.Time { return fixed })
}

func TestCloneReturnsDirectiveAndRecords(t *testing.T) {
	ledger := newFakeLedger()
	sink := &fakeSink{}
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, ledger, sink)

	meta := domain.RequestMeta{IP: "203.0.113.9", UserAgent: "ua", Country: "BR"}
	d, err := svc.Verify(context.Background(), ports.VerifyRequest{
		ShortID:     shortid.Encode(brand.ID),
		ObservedURL: "https://clone-site.example/page#top",
		Meta:        meta,
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !d.IsClone || d.Action == nil {
		t.Fatalf("expected clone directive, got %+v", d)
	}
	if d.Action.Type != domain.ActionRedirect || d.Action.Data != "https://brand.example" {
		t.Fatalf("unexpected action %+v", d.Action)
	}
	if got := ledger.count(brand.ID, "https://clone-site.example/page"); got != 1 {
		t.Fatalf("access count = %d, want 1 (fragment stripped)", got)
	}
	if len(sink.entries) != 1 || sink.entries[0].Meta != meta || sink.entries[0].CloneDetectionID == nil {
		t.Fatalf("unexpected access log entries %+v", sink.entries)
	}
}

func TestOriginalDomainIsNeverAClone(t *testing.T) {
	ledger := newFakeLedger()
	sink := &fakeSink{}
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, ledger, sink)

	for _, u := range []string{
		"https://brand.example/page",
		"http://BRAND.example./other?x=1",
		"https://brand.example:8443/",
	} {
		d, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: shortid.Encode(brand.ID), ObservedURL: u})
		if err != nil {
			t.Fatalf("Verify(%s): %v", u, err)
		}
		if d.IsClone || d.Action != nil {
			t.Fatalf("Verify(%s) = %+v, want not clone", u, d)
		}
	}
	if len(ledger.rows) != 0 || len(sink.entries) != 0 {
		t.Fatalf("expected no writes, got ledger=%d logs=%d", len(ledger.rows), len(sink.entries))
	}
}

func TestOriginalDomainWithoutScheme(t *testing.T) {
	site := brand
	site.OriginalDomain = "brand.example"
	ledger := newFakeLedger()
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{site}}, ledger, &fakeSink{})

	d, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: shortid.Encode(site.ID), ObservedURL: "https://brand.example/"})
	if err != nil || d.IsClone {
		t.Fatalf("Verify = %+v, %v; want not clone", d, err)
	}
}

func TestRepeatedDetectionsIncrement(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, ledger, &fakeSink{})
	req := ports.VerifyRequest{ShortID: shortid.Encode(brand.ID), ObservedURL: "https://clone.example/a"}

	var last int64
	for i := 1; i <= 5; i++ {
		if _, err := svc.Verify(context.Background(), req); err != nil {
			t.Fatalf("Verify: %v", err)
		}
		got := ledger.count(brand.ID, req.ObservedURL)
		if got != last+1 {
			t.Fatalf("call %d: count = %d, want %d", i, got, last+1)
		}
		last = got
	}
}

func TestHostCaseVariantsShareOneRow(t *testing.T) {
	ledger := newFakeLedger()
	sink := &fakeSink{}
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, ledger, sink)
	id := shortid.Encode(brand.ID)

	for _, u := range []string{"https://Clone.Example/Offer", "https://CLONE.EXAMPLE/Offer", "https://clone.example/Offer"} {
		if _, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: id, ObservedURL: u}); err != nil {
			t.Fatalf("Verify(%q): %v", u, err)
		}
	}
	ledger.mu.Lock()
	rows := len(ledger.rows)
	ledger.mu.Unlock()
	if rows != 1 {
		t.Fatalf("ledger rows = %d, want 1", rows)
	}
	if got := ledger.count(brand.ID, "https://clone.example/Offer"); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
	for _, e := range sink.entries {
		if e.CloneURL != "https://clone.example/Offer" {
			t.Fatalf("access log url = %q, want lowercased host", e.CloneURL)
		}
	}
}

func TestUnknownIDIsNotFound(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, ledger, &fakeSink{})

	_, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: "zzz999", ObservedURL: "https://clone.example/"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(ledger.rows) != 0 {
		t.Fatalf("expected no ledger rows")
	}
}

func TestInvalidInput(t *testing.T) {
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, newFakeLedger(), &fakeSink{})
	good := shortid.Encode(brand.ID)
	cases := []ports.VerifyRequest{
		{ShortID: "", ObservedURL: "https://clone.example/"},
		{ShortID: "NOT-VALID", ObservedURL: "https://clone.example/"},
		{ShortID: good, ObservedURL: ""},
		{ShortID: good, ObservedURL: "javascript:alert(1)"},
		{ShortID: good, ObservedURL: "/relative/path"},
		{ShortID: good, ObservedURL: "https://clone.example/" + strings.Repeat("a", MaxURLLength)},
	}
	for _, c := range cases {
		if _, err := svc.Verify(context.Background(), c); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Verify(%+v) err = %v, want ErrInvalidInput", c, err)
		}
	}
}

func TestLookupFailureFailsClosed(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(&fakeSites{err: errors.New("db down")}, ledger, &fakeSink{})

	d, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: shortid.Encode(brand.ID), ObservedURL: "https://clone.example/"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if d.IsClone {
		t.Fatalf("expected not clone on lookup failure")
	}
}

func TestLedgerFailureStillReturnsDirective(t *testing.T) {
	ledger := newFakeLedger()
	ledger.err = errors.New("write failed")
	sink := &fakeSink{full: true}
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, ledger, sink)

	d, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: shortid.Encode(brand.ID), ObservedURL: "https://clone.example/"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !d.IsClone || d.Action == nil {
		t.Fatalf("expected directive despite ledger failure, got %+v", d)
	}
}

func TestNoneCountermeasureHasNilAction(t *testing.T) {
	site := brand
	site.Countermeasure = domain.Countermeasure{Type: domain.ActionNone}
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{site}}, newFakeLedger(), &fakeSink{})

	d, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: shortid.Encode(site.ID), ObservedURL: "https://clone.example/"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !d.IsClone || d.Action != nil {
		t.Fatalf("got %+v, want isClone with nil action", d)
	}
}

func TestUnusableOriginalDomainIsNotClone(t *testing.T) {
	site := brand
	site.OriginalDomain = "   "
	ledger := newFakeLedger()
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{site}}, ledger, &fakeSink{})

	d, err := svc.Verify(context.Background(), ports.VerifyRequest{ShortID: shortid.Encode(site.ID), ObservedURL: "https://clone.example/"})
	if err != nil || d.IsClone {
		t.Fatalf("Verify = %+v, %v; want not clone", d, err)
	}
	if len(ledger.rows) != 0 {
		t.Fatalf("expected no ledger rows")
	}
}

func TestConcurrentDetectionsAreCounted(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(&fakeSites{sites: []domain.ProtectedSite{brand}}, ledger, &fakeSink{})
	req := ports.VerifyRequest{ShortID: shortid.Encode(brand.ID), ObservedURL: "https://clone.example/race"}

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Verify(context.Background(), req); err != nil {
				t.Errorf("Verify: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := ledger.count(brand.ID, req.ObservedURL); got != n {
		t.Fatalf("access count = %d, want %d", got, n)
	}
}
