package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
)

// SiteRepository stores protected sites. The protocol only reads them.
type SiteRepository interface {
	// FindByIDPrefix returns sites whose hex id (no dashes) starts with prefix,
	// ordered by id.
	FindByIDPrefix(ctx context.Context, prefix string) ([]domain.ProtectedSite, error)
	GetSite(ctx context.Context, id uuid.UUID) (domain.ProtectedSite, error)
	ListSites(ctx context.Context) ([]domain.ProtectedSite, error)
	CreateSite(ctx context.Context, site domain.ProtectedSite) (domain.ProtectedSite, error)
}

// CloneLedger records detections. RecordDetection must be a single atomic
// insert-or-increment keyed by (site, clone url).
type CloneLedger interface {
	RecordDetection(ctx context.Context, siteID uuid.UUID, cloneURL, cloneDomain string, at time.Time) (domain.CloneDetection, error)
	ListDetections(ctx context.Context, siteID uuid.UUID) ([]domain.CloneDetection, error)
}

// AccessLogRepository is the append-only per-event log.
type AccessLogRepository interface {
	AppendAccessLog(ctx context.Context, e domain.AccessLogEntry) error
	ListAccessLogs(ctx context.Context, siteID uuid.UUID, limit int) ([]domain.AccessLogEntry, error)
}
