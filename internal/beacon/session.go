package beacon

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/klirineu/offertrack-web/internal/countermeasure"
	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/logger"
)

type State int

const (
	Idle State = iota
	IdentifierResolved
	Verifying
	NotClone
	CloneConfirmed
	CountermeasureApplied
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case IdentifierResolved:
		return "identifier_resolved"
	case Verifying:
		return "verifying"
	case NotClone:
		return "not_clone"
	case CloneConfirmed:
		return "clone_confirmed"
	case CountermeasureApplied:
		return "countermeasure_applied"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen on this load.
func (s State) Terminal() bool {
	return s == NotClone || s == CloneConfirmed || s == CountermeasureApplied
}

// DirectiveSource is what a session asks for a verdict. *Client satisfies it.
type DirectiveSource interface {
	Verify(ctx context.Context, id, pageURL string) (domain.Directive, error)
}

// Session is one page load of the beacon.
type Session struct {
	source     DirectiveSource
	scriptPath string

	state     State
	history   []State
	id        string
	directive domain.Directive
	result    countermeasure.Result
	err       error
}

// NewSession creates a session recognising beacon tags whose src path ends
// in scriptPath ("/anticlone.js" when empty).
func NewSession(source DirectiveSource, scriptPath string) *Session {
	if scriptPath == "" {
		scriptPath = "/anticlone.js"
	}
	return &Session{source: source, scriptPath: scriptPath, history: []State{Idle}}
}

func (s *Session) State() State { return s.state }
func (s *Session) History() []State { return append([]State(nil), s.history...) }
func (s *Session) ID() string { return s.id }
func (s *Session) Directive() domain.Directive { return s.directive }
func (s *Session) Result() countermeasure.Result { return s.result }

// Err is the failure that ended the session in NotClone, if any.
func (s *Session) Err() error { return s.err }

func (s *Session) to(st State) {
	s.state = st
	s.history = append(s.history, st)
}

// Run drives the session to a terminal state against doc. A session verifies
// at most once; later calls return the terminal state unchanged.
func (s *Session) Run(ctx context.Context, doc *countermeasure.Document) State {
	if s.state != Idle {
		return s.state
	}
	src, ok := FindScript(doc, s.scriptPath)
	if !ok || src.Query().Get("id") == "" {
		s.to(NotClone)
		return s.state
	}
	s.id = src.Query().Get("id")
	s.to(IdentifierResolved)

	s.to(Verifying)
	d, err := s.source.Verify(ctx, s.id, doc.Location())
	if err != nil {
		logger.Debug("beacon: verify %s: %v", s.id, err)
		s.err = err
		s.to(NotClone)
		return s.state
	}
	s.directive = d
	if !d.IsClone {
		s.to(NotClone)
		return s.state
	}
	s.to(CloneConfirmed)
	if d.Action == nil {
		return s.state
	}

	res, err := countermeasure.Apply(doc, d.Action)
	if err != nil {
		s.err = err
		return s.state
	}
	s.result = res
	if res.Navigated || res.Subscription != nil {
		s.to(CountermeasureApplied)
	}
	return s.state
}

// FindScript returns the resolved src of the first <script> in doc whose path
// ends in scriptPath.
func FindScript(doc *countermeasure.Document, scriptPath string) (*url.URL, bool) {
	base, _ := url.Parse(doc.Location())
	want := "/" + strings.TrimLeft(scriptPath, "/")
	var found *url.URL
	doc.Selection().Find("script[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, _ := sel.Attr("src")
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return true
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if strings.HasSuffix(u.Path, want) {
			found = u
			return false
		}
		return true
	})
	return found, found != nil
}
