// Package favicon replaces the icon link of a document.
package favicon

import "github.com/rook-computer/favicount/internal/document"

const (
	LinkType = "image/x-icon"
	LinkRel  = "icon"
)

// Editable is the document side of a swap.
type Editable interface {
	Edit(fn func(e *document.Editor))
}

// Swapper keeps exactly one favicon link in a document.
type Swapper struct {
	Doc Editable
}

func NewSwapper(doc Editable) *Swapper { return &Swapper{Doc: doc} }

// Replace removes every favicon link and appends one pointing at url. An
// empty url leaves the document alone and reports false.
func (s *Swapper) Replace(url string) bool {
	if url == "" || s.Doc == nil {
		return false
	}
	s.Doc.Edit(func(e *document.Editor) {
		for n := e.FirstIcon(); n != nil; n = e.FirstIcon() {
			e.Remove(n)
		}
		e.AppendLink(LinkType, LinkRel, url)
	})
	return true
}
