package sites

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/ports"
	"github.com/klirineu/offertrack-web/internal/services/verification"
	"github.com/klirineu/offertrack-web/internal/shortid"
)

var ErrInvalidSite = errors.New("invalid site")

// Service is the operator-facing registry of protected sites.
type Service struct {
	repo          ports.SiteRepository
	publicBaseURL string
	scriptPath    string
}

func New(repo ports.SiteRepository, publicBaseURL, scriptPath string) *Service {
	return &Service{repo: repo, publicBaseURL: strings.TrimRight(publicBaseURL, "/"), scriptPath: scriptPath}
}

func (s *Service) Register(ctx context.Context, originalDomain string, cm domain.Countermeasure) (domain.ProtectedSite, error) {
	if _, err := verification.HostOf(originalDomain); err != nil {
		return domain.ProtectedSite{}, fmt.Errorf("%w: original domain %q: %v", ErrInvalidSite, originalDomain, err)
	}
	cm.Type = domain.ParseActionType(string(cm.Type))
	if cm.Type != domain.ActionNone {
		u, err := url.Parse(cm.Target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.ProtectedSite{}, fmt.Errorf("%w: %s target must be an absolute http(s) url, got %q", ErrInvalidSite, cm.Type, cm.Target)
		}
	} else {
		cm.Target = ""
	}
	now := time.Now().UTC()
	site := domain.ProtectedSite{
		ID:             uuid.New(),
		OriginalDomain: strings.TrimSpace(originalDomain),
		Countermeasure: cm,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.repo.CreateSite(ctx, site)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.ProtectedSite, error) {
	return s.repo.GetSite(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.ProtectedSite, error) {
	return s.repo.ListSites(ctx)
}

// ScriptURL is the beacon url for site, carrying its short id.
func (s *Service) ScriptURL(site domain.ProtectedSite) string {
	q := url.Values{"id": {shortid.Encode(site.ID)}}
	return s.publicBaseURL + s.scriptPath + "?" + q.Encode()
}

// Snippet is the tag a site owner pastes into pages they want protected.
func (s *Service) Snippet(site domain.ProtectedSite) string {
	return fmt.Sprintf(`<script src="%s" async></script>`, html.EscapeString(s.ScriptURL(site)))
}
