package httpadapter

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	api "github.com/klirineu/offertrack-web/internal/api"
	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/logger"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s %d %dB %s", r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}

// allowAnyOrigin marks responses readable from any page; the beacon runs on
// whatever domain the page is served from.
func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Accept, Content-Type")
	h.Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// trustedRealIP replaces RemoteAddr with the forwarded client address, but
// only for requests whose socket peer is a trusted proxy. Anyone else is
// known by the socket address whatever headers they send.
func trustedRealIP(proxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, ok := forwardedClient(r, proxies); ok {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(r *http.Request, proxies []netip.Prefix) (string, bool) {
	if len(proxies) == 0 {
		return "", false
	}
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok || !trusted(peer, proxies) {
		return "", false
	}
	// Each proxy appends the address it saw, so the rightmost untrusted hop
	// is the client. Entries left of it are whatever the client claimed.
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(strings.TrimSpace(hops[i]))
			if !ok {
				return "", false
			}
			if i == 0 || !trusted(addr, proxies) {
				return addr.String(), true
			}
		}
	}
	for _, h := range []string{"X-Real-IP", "True-Client-IP"} {
		if addr, ok := parseAddr(strings.TrimSpace(r.Header.Get(h))); ok {
			return addr.String(), true
		}
	}
	return "", false
}

func parseAddr(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func trusted(addr netip.Addr, proxies []netip.Prefix) bool {
	for _, p := range proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

type metaKey struct{}

// withRequestMeta hands the visitor's request metadata to the strict
// handlers, which only see the context.
func withRequestMeta(f api.StrictHandlerFunc, operationID string) api.StrictHandlerFunc {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		if operationID == "VerifyClone" {
			w.Header().Set("Cache-Control", "no-store")
			ctx = context.WithValue(ctx, metaKey{}, requestMeta(r))
		}
		return f(ctx, w, r, request)
	}
}

func metaFrom(ctx context.Context) domain.RequestMeta {
	m, _ := ctx.Value(metaKey{}).(domain.RequestMeta)
	return m
}

// limitVerify rate limits the verify operation per client; health checks
// pass through.
func (s *Server) limitVerify(f api.StrictHandlerFunc, operationID string) api.StrictHandlerFunc {
	if s.limiter == nil || operationID != "VerifyClone" {
		return f
	}
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		if !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			return api.VerifyClone429JSONResponse{Message: "rate limit exceeded"}, nil
		}
		return f(ctx, w, r, request)
	}
}

func badRequest(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("Cache-Control", "no-store")
	writeError(w, http.StatusBadRequest, err.Error())
}

func responseError(w http.ResponseWriter, r *http.Request, err error) {
	logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(api.Error{Message: msg}); err != nil {
		logger.Error("write response: %v", err)
	}
}

const (
	limiterSweepEvery  = time.Minute
	limiterIdleAfter   = 3 * time.Minute
	limiterMaxVisitors = 1 << 16
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter is a token bucket per client address. Idle buckets are swept
// while handling requests and the table never holds more than max entries.
type ipLimiter struct {
	limit rate.Limit
	burst int
	max   int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{limit: limit, burst: burst, max: limiterMaxVisitors, visitors: map[string]*visitor{}, now: time.Now}
}

func (l *ipLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		l.sweep(now)
	}
	v, ok := l.visitors[key]
	if !ok {
		if len(l.visitors) >= l.max {
			l.sweep(now)
			l.evictOldest()
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *ipLimiter) sweep(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) >= limiterIdleAfter {
			delete(l.visitors, k)
		}
	}
	l.lastSweep = now
}

func (l *ipLimiter) evictOldest() {
	for len(l.visitors) > 0 && len(l.visitors) >= l.max {
		var oldest string
		var seen time.Time
		for k, v := range l.visitors {
			if oldest == "" || v.lastSeen.Before(seen) {
				oldest, seen = k, v.lastSeen
			}
		}
		delete(l.visitors, oldest)
	}
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the remote host; trustedRealIP has already applied proxy
// headers from trusted peers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
