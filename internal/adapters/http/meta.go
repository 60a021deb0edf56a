package httpadapter

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/klirineu/offertrack-web/internal/domain"
)

const maxMetaLen = 512

// Edge networks put the visitor's location in request headers. The first
// non-empty header wins.
var (
	countryHeaders = []string{"CF-IPCountry", "X-Vercel-IP-Country", "CloudFront-Viewer-Country", "X-Country-Code"}
	regionHeaders  = []string{"CF-Region", "X-Vercel-IP-Country-Region", "CloudFront-Viewer-Country-Region", "X-Region"}
	cityHeaders    = []string{"CF-IPCity", "X-Vercel-IP-City", "CloudFront-Viewer-City", "X-City"}
)

func requestMeta(r *http.Request) domain.RequestMeta {
	country := firstHeader(r, countryHeaders)
	// Cloudflare reports XX for unknown and T1 for Tor.
	if country == "XX" {
		country = ""
	}
	return domain.RequestMeta{
		IP:        clientIP(r),
		UserAgent: clip(r.UserAgent()),
		Referrer:  clip(r.Referer()),
		Country:   strings.ToUpper(country),
		Region:    firstHeader(r, regionHeaders),
		City:      firstHeader(r, cityHeaders),
	}
}

func firstHeader(r *http.Request, names []string) string {
	for _, n := range names {
		v := strings.TrimSpace(r.Header.Get(n))
		if v == "" {
			continue
		}
		if u, err := url.QueryUnescape(v); err == nil {
			v = u
		}
		return clip(v)
	}
	return ""
}

func clip(s string) string {
	if len(s) > maxMetaLen {
		return s[:maxMetaLen]
	}
	return s
}
