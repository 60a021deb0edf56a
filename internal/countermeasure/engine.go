package countermeasure

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/logger"
)

var (
	anchors = cascadia.MustCompile("a")
	images  = cascadia.MustCompile("img")
)

// rewrite is one attribute replacement rule.
type rewrite struct {
	matcher cascadia.Selector
	attr    string
	drop    []string
}

func rewriteFor(t domain.ActionType) (rewrite, bool) {
	switch t {
	case domain.ActionReplaceLinks:
		return rewrite{matcher: anchors, attr: "href"}, true
	case domain.ActionReplaceImages:
		return rewrite{matcher: images, attr: "src", drop: []string{"srcset"}}, true
	}
	return rewrite{}, false
}

// Result describes what Apply did.
type Result struct {
	Navigated    bool
	Rewritten    int
	Subscription *Subscription
}

// Apply executes action against doc. Replacement actions leave a live
// Subscription behind; it is never stopped by the engine. Panics raised
// while mutating are recovered and logged.
func Apply(doc *Document, action *domain.Action) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("countermeasure: %v", r)
			err = fmt.Errorf("countermeasure: %v", r)
		}
	}()
	if action == nil || action.Data == "" {
		return res, nil
	}
	if action.Type == domain.ActionRedirect {
		doc.Navigate(action.Data)
		res.Navigated = true
		return res, nil
	}
	rw, ok := rewriteFor(action.Type)
	if !ok {
		return res, nil
	}
	res.Rewritten = rw.apply(doc.Selection(), action.Data)
	res.Subscription = doc.Observe(func(added []*html.Node) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("countermeasure observer: %v", r)
			}
		}()
		for _, n := range added {
			rw.apply(goquery.NewDocumentFromNode(n).Selection, action.Data)
		}
	})
	return res, nil
}

// apply rewrites matching elements in sel and its descendants. It returns
// how many attributes actually changed.
func (rw rewrite) apply(sel *goquery.Selection, target string) int {
	changed := 0
	set := func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(rw.attr); !ok || v != target {
			s.SetAttr(rw.attr, target)
			changed++
		}
		for _, a := range rw.drop {
			if _, ok := s.Attr(a); ok {
				s.RemoveAttr(a)
				changed++
			}
		}
	}
	sel.FilterMatcher(rw.matcher).Each(set)
	sel.FindMatcher(rw.matcher).Each(set)
	return changed
}
