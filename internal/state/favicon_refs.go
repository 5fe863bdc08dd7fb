package state

import "sync"

// DefaultIconPath is the initial reference when a document declares no icon.
const DefaultIconPath = "/favicon.ico"

// IconSource finds the document's first favicon href.
type IconSource interface {
	FirstIconHref() (string, bool)
}

// FaviconRefs tracks the favicon the page started with and the one it
// currently shows.
type FaviconRefs struct {
	mu       sync.Mutex
	doc      IconSource
	original string
	current  string
}

func NewFaviconRefs(doc IconSource) *FaviconRefs {
	return &FaviconRefs{doc: doc}
}

// Current returns the current reference, reading both values from the
// document while either is still empty.
func (r *FaviconRefs) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.original == "" || r.current == "" {
		href, ok := "", false
		if r.doc != nil {
			href, ok = r.doc.FirstIconHref()
		}
		if !ok {
			href = DefaultIconPath
		}
		r.original, r.current = href, href
	}
	return r.current
}

func (r *FaviconRefs) SetCurrent(v string) {
	r.mu.Lock()
	r.current = v
	r.mu.Unlock()
}

// Original returns the captured original, or "" before the first Current.
func (r *FaviconRefs) Original() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.original
}

type Refs struct {
	Original string `json:"original"`
	Current  string `json:"current"`
}

func (r *FaviconRefs) Snapshot() Refs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Refs{Original: r.original, Current: r.current}
}
