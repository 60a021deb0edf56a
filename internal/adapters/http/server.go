package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"golang.org/x/time/rate"

	api "github.com/klirineu/offertrack-web/internal/api"
	"github.com/klirineu/offertrack-web/internal/beacon"
	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/logger"
	"github.com/klirineu/offertrack-web/internal/pixel"
	"github.com/klirineu/offertrack-web/internal/ports"
	"github.com/klirineu/offertrack-web/internal/services/verification"
)

const (
	VerifyPath = beacon.VerifyPath
	PixelPath  = "/api/anticlone/pixel.gif"
)

type Options struct {
	ScriptPath     string
	RequestTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
	// TrustedProxies are the peers allowed to name the client through
	// forwarding headers.
	TrustedProxies []netip.Prefix
}

// Server implements the generated StrictServerInterface and serves the
// beacon script and pixel beside it.
type Server struct {
	verifier ports.Verifier
	opts     Options
	limiter  *ipLimiter
}

var _ api.StrictServerInterface = (*Server)(nil)

func New(verifier ports.Verifier, opts Options) *Server {
	if opts.ScriptPath == "" {
		opts.ScriptPath = "/anticlone.js"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	s := &Server{verifier: verifier, opts: opts}
	if opts.RateLimit > 0 {
		s.limiter = newIPLimiter(opts.RateLimit, opts.RateBurst)
	}
	return s
}

// Routes returns a chi.Router mounting the generated handlers, the script
// and the pixel.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(trustedRealIP(s.opts.TrustedProxies))
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Method(http.MethodGet, s.opts.ScriptPath, beacon.ScriptHandler())

	r.Group(func(r chi.Router) {
		r.Use(allowAnyOrigin)
		r.Options(VerifyPath, preflight)

		handler := api.NewStrictHandlerWithOptions(s,
			[]api.StrictMiddlewareFunc{s.limitVerify, withRequestMeta},
			api.StrictHTTPServerOptions{
				RequestErrorHandlerFunc:  badRequest,
				ResponseErrorHandlerFunc: responseError,
			})
		api.HandlerWithOptions(handler, api.ChiServerOptions{
			BaseRouter:       r,
			ErrorHandlerFunc: badRequest,
		})

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.middleware)
			}
			r.Get(PixelPath, s.pixel)
		})
	})
	return r
}

// Strict handler methods

func (s *Server) GetHealthz(ctx context.Context, _ api.GetHealthzRequestObject) (api.GetHealthzResponseObject, error) {
	ok := "ok"
	return api.GetHealthz200JSONResponse{Status: &ok}, nil
}

func (s *Server) VerifyClone(ctx context.Context, req api.VerifyCloneRequestObject) (api.VerifyCloneResponseObject, error) {
	d, err := s.resolve(ctx, req.Params, metaFrom(ctx))
	switch {
	case errors.Is(err, verification.ErrInvalidInput):
		return api.VerifyClone400JSONResponse{Message: err.Error()}, nil
	case errors.Is(err, verification.ErrNotFound):
		return api.VerifyClone404JSONResponse{Message: err.Error()}, nil
	}
	return api.VerifyClone200JSONResponse(toAPIDirective(d)), nil
}

// resolve runs a verification. Errors other than bad input and unknown ids
// are logged and read as not a clone.
func (s *Server) resolve(ctx context.Context, p api.VerifyCloneParams, meta domain.RequestMeta) (domain.Directive, error) {
	d, err := s.verifier.Verify(ctx, ports.VerifyRequest{
		ShortID:     p.Id,
		ObservedURL: p.Url,
		Meta:        meta,
	})
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, verification.ErrInvalidInput), errors.Is(err, verification.ErrNotFound):
		return domain.NotClone(), err
	default:
		logger.Error("verify %q: %v", p.Id, err)
		return domain.NotClone(), nil
	}
}

func toAPIDirective(d domain.Directive) api.Directive {
	out := api.Directive{IsClone: d.IsClone}
	if d.Action != nil {
		out.Action = &api.Action{Type: api.ActionType(d.Action.Type), Data: d.Action.Data}
	}
	return out
}

// bindVerifyParams reads the pixel's query the way the generated wrapper
// reads the verify query.
func bindVerifyParams(r *http.Request) (api.VerifyCloneParams, error) {
	var p api.VerifyCloneParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "id", q, &p.Id); err != nil {
		return p, &api.InvalidParamFormatError{ParamName: "id", Err: err}
	}
	if err := runtime.BindQueryParameter("form", true, true, "url", q, &p.Url); err != nil {
		return p, &api.InvalidParamFormatError{ParamName: "url", Err: err}
	}
	return p, nil
}

// pixel answers with a GIF whatever happens; errors read as not a clone.
func (s *Server) pixel(w http.ResponseWriter, r *http.Request) {
	d := domain.NotClone()
	p, err := bindVerifyParams(r)
	if err == nil {
		d, err = s.resolve(r.Context(), p, requestMeta(r))
	}
	if err != nil {
		logger.Debug("pixel: %v", err)
		d = domain.NotClone()
	}
	w.Header().Set("Content-Type", pixel.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	if err := pixel.Encode(w, d); err != nil {
		logger.Error("pixel: %v", err)
	}
}
