package ports

import (
	"context"

	"github.com/klirineu/offertrack-web/internal/domain"
)

type VerifyRequest struct {
	ShortID     string
	ObservedURL string
	Meta        domain.RequestMeta
}

// Verifier decides whether an observed page is a clone of a protected site.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (domain.Directive, error)
}

// AccessLogSink accepts access log entries without blocking the caller.
type AccessLogSink interface {
	Enqueue(e domain.AccessLogEntry) bool
}
