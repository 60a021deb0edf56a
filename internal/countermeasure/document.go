// Package countermeasure applies clone directives to an HTML document.
//
// Document wraps a goquery document and adds what a browser provides to the
// beacon: a location that can be navigated and a subtree-change notification
// scoped to <body>. Engine uses both to rewrite links and images, including
// the ones inserted after the directive was applied.
package countermeasure

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MutationFunc receives the nodes added under <body> by one insertion.
type MutationFunc func(added []*html.Node)

type Document struct {
	doc      *goquery.Document
	location string

	mu        sync.Mutex
	observers map[int]MutationFunc
	nextID    int
}

func NewDocument(r io.Reader, location string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{doc: doc, location: location, observers: map[int]MutationFunc{}}, nil
}

func ParseDocument(src, location string) (*Document, error) {
	return NewDocument(strings.NewReader(src), location)
}

// Selection exposes the underlying goquery document.
func (d *Document) Selection() *goquery.Selection { return d.doc.Selection }

func (d *Document) Location() string { return d.location }

// Navigate replaces the document location, like assigning window.location.
func (d *Document) Navigate(url string) { d.location = url }

func (d *Document) HTML() (string, error) { return goquery.OuterHtml(d.doc.Selection) }

// Observe registers fn for insertions under <body>. The returned
// Subscription stays active until Stop.
func (d *Document) Observe(fn MutationFunc) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return &Subscription{doc: d, id: id}
}

// Append parses fragment and appends it to every element matching selector,
// then notifies observers of the nodes that landed inside <body>.
func (d *Document) Append(selector, fragment string) error {
	targets := d.doc.Find(selector)
	if targets.Length() == 0 {
		return fmt.Errorf("append: no element matches %q", selector)
	}
	var added []*html.Node
	var parseErr error
	targets.Each(func(_ int, s *goquery.Selection) {
		if parseErr != nil {
			return
		}
		parent := s.Get(0)
		nodes, err := html.ParseFragment(strings.NewReader(fragment), contextFor(parent))
		if err != nil {
			parseErr = err
			return
		}
		s.AppendNodes(nodes...)
		if inBody(parent) {
			added = append(added, nodes...)
		}
	})
	if parseErr != nil {
		return fmt.Errorf("append: parse fragment: %w", parseErr)
	}
	d.notify(added)
	return nil
}

func (d *Document) notify(added []*html.Node) {
	if len(added) == 0 {
		return
	}
	d.mu.Lock()
	fns := make([]MutationFunc, 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(added)
	}
}

func contextFor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		return &html.Node{Type: html.ElementNode, Data: n.Data, DataAtom: n.DataAtom}
	}
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func inBody(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			return true
		}
	}
	return false
}

// Subscription is a live mutation observer registration.
type Subscription struct {
	doc  *Document
	id   int
	once sync.Once
}

// Stop unregisters the observer. Only page teardown calls it.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.doc.mu.Lock()
		delete(s.doc.observers, s.id)
		s.doc.mu.Unlock()
	})
}

// Active reports whether the subscription still receives notifications.
func (s *Subscription) Active() bool {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	_, ok := s.doc.observers[s.id]
	return ok
}
