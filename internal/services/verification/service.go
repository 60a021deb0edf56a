package verification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/logger"
	"github.com/klirineu/offertrack-web/internal/ports"
	"github.com/klirineu/offertrack-web/internal/shortid"
)

// MaxURLLength bounds the observed url accepted from beacons.
const MaxURLLength = 2048

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

type Service struct {
	sites  ports.SiteRepository
	ledger ports.CloneLedger
	logs   ports.AccessLogSink
	now    func() time.Time
}

func New(sites ports.SiteRepository, ledger ports.CloneLedger, logs ports.AccessLogSink) *Service {
	return &Service{sites: sites, ledger: ledger, logs: logs, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Verify resolves req.ShortID and decides whether req.ObservedURL is a clone.
// Only ErrInvalidInput and ErrNotFound are returned; infrastructure failures
// degrade to the inert directive.
func (s *Service) Verify(ctx context.Context, req ports.VerifyRequest) (domain.Directive, error) {
	observed, err := parseObservedURL(req.ObservedURL)
	if err != nil {
		return domain.NotClone(), err
	}
	prefix, err := shortid.Decode(req.ShortID)
	if err != nil {
		return domain.NotClone(), fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	candidates, err := s.sites.FindByIDPrefix(ctx, prefix)
	if err != nil {
		logger.Error("verify: site lookup for %q failed: %v", req.ShortID, err)
		return domain.NotClone(), nil
	}
	site, err := shortid.Resolve(req.ShortID, candidates)
	if err != nil {
		return domain.NotClone(), fmt.Errorf("%w: site %q", ErrNotFound, req.ShortID)
	}

	originalHost, err := hostOf(site.OriginalDomain)
	if err != nil {
		logger.Error("verify: site %s has unusable original domain %q: %v", site.ID, site.OriginalDomain, err)
		return domain.NotClone(), nil
	}
	observedHost := normalizeHost(observed.Hostname())
	if observedHost == originalHost {
		return domain.NotClone(), nil
	}

	now := s.now().UTC()
	cloneURL := observed.String()
	det, err := s.ledger.RecordDetection(ctx, site.ID, cloneURL, registrableDomain(observedHost), now)
	var detID *int64
	if err != nil {
		logger.Error("verify: record detection site=%s url=%q: %v", site.ID, cloneURL, err)
	} else {
		detID = &det.ID
		logger.Debug("verify: clone site=%s url=%q count=%d", site.ID, cloneURL, det.AccessCount)
	}

	if s.logs != nil {
		entry := domain.AccessLogEntry{
			ProtectedSiteID:  site.ID,
			CloneDetectionID: detID,
			CloneURL:         cloneURL,
			Meta:             req.Meta,
			AccessedAt:       now,
		}
		if !s.logs.Enqueue(entry) {
			logger.Warn("verify: access log queue full, dropping entry for site=%s", site.ID)
		}
	}

	return directiveFor(site), nil
}

func directiveFor(site domain.ProtectedSite) domain.Directive {
	d := domain.Directive{IsClone: true}
	if site.Countermeasure.Active() {
		d.Action = &domain.Action{Type: site.Countermeasure.Type, Data: site.Countermeasure.Target}
	}
	return d
}

func parseObservedURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(raw) > MaxURLLength {
		return nil, fmt.Errorf("%w: url longer than %d bytes", ErrInvalidInput, MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: url scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: url has no host", ErrInvalidInput)
	}
	u.Fragment = ""
	// Hosts are case-insensitive; the path is not.
	u.Host = strings.ToLower(u.Host)
	u.RawFragment = ""
	return u, nil
}

// hostOf accepts "brand.example", "brand.example/path" or a full url.
func hostOf(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty domain")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return "", errors.New("no host")
	}
	return host, nil
}

// HostOf exposes the original-domain normalisation to other packages.
func HostOf(raw string) (string, error) { return hostOf(raw) }

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(h), ".")
}

func registrableDomain(host string) string {
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}
