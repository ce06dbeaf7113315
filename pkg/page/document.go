// Package page hosts an HTML document tree on a single-goroutine event loop,
// with the readiness signal page scripts wait on before touching the tree.
package page

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReadyState is the parsing state of a Document
type ReadyState int

const (
	Loading ReadyState = iota
	Interactive
	Complete
)

func (s ReadyState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Interactive:
		return "interactive"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("ReadyState(%d)", int(s))
}

// Document is an HTML node tree bound to an event loop
type Document struct {
	loop *Loop

	mu        sync.Mutex
	root      *html.Node
	state     ReadyState
	listeners []func()
	ready     chan struct{}
}

// NewDocument returns an empty document in the loading state
func NewDocument(loop *Loop) *Document {
	return &Document{
		loop:  loop,
		root:  &html.Node{Type: html.DocumentNode},
		ready: make(chan struct{}),
	}
}

// ParseDocument creates a document and loads r into it
func ParseDocument(loop *Loop, r io.Reader) (*Document, error) {
	doc := NewDocument(loop)
	if err := doc.Load(r); err != nil {
		return nil, err
	}
	return doc, nil
}

// Load parses r as the document content, then moves the document through
// interactive (firing the content-loaded event) to complete.
func (d *Document) Load(r io.Reader) error {
	root, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	d.mu.Lock()
	d.root = root
	d.mu.Unlock()

	d.SetReadyState(Interactive)
	d.SetReadyState(Complete)
	return nil
}

// ReadyState returns the current parsing state
func (d *Document) ReadyState() ReadyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetReadyState advances the parsing state. States never move backwards.
// Leaving the loading state fires the content-loaded event once.
func (d *Document) SetReadyState(s ReadyState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s <= d.state {
		return
	}
	if d.state == Loading {
		close(d.ready)
		for _, fn := range d.listeners {
			d.post(fn)
		}
		d.listeners = nil
	}
	d.state = s
}

// Ready is closed once the document has finished its initial parse
func (d *Document) Ready() <-chan struct{} {
	return d.ready
}

// OnReady runs callback once the document is safe to manipulate. If the document
// is already interactive or complete, callback is posted to the loop instead of
// being called synchronously.
func (d *Document) OnReady(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Loading {
		d.listeners = append(d.listeners, callback)
		return
	}
	d.post(callback)
}

func (d *Document) post(fn func()) {
	// A closed loop means the page is gone; the callback has nothing left to touch.
	_ = d.loop.Post(fn)
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// Body returns the body element, or nil
func (d *Document) Body() *html.Node {
	return findElement(d.Root(), func(n *html.Node) bool {
		return n.DataAtom == atom.Body
	})
}

// GetElementByID returns the first element whose id attribute equals id
func (d *Document) GetElementByID(id string) *html.Node {
	return findElement(d.Root(), func(n *html.Node) bool {
		return Attr(n, "id") == id
	})
}

// Render writes the document as HTML
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.Root())
}

// String renders the document, returning an empty string on failure
func (d *Document) String() string {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// Attr returns the value of the named attribute of n
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, match); found != nil {
			return found
		}
	}
	return nil
}
