// Package document holds the HTML page whose favicon is being badged.
package document

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// iconRel matches the rel attribute of favicon links. "shortcut icon" and
// "apple-touch-icon" match; "icons" does not.
var iconRel = regexp.MustCompile(`\bicon\b`)

// IsIconRel reports whether a link rel value marks a favicon.
func IsIconRel(rel string) bool { return iconRel.MatchString(rel) }

// Document is a parsed HTML page. All access goes through its lock, so a
// Document may be shared between the render loop and HTTP handlers.
type Document struct {
	mu      sync.RWMutex
	root    *html.Node
	url     *url.URL
	charset string
	version uint64
}

// New wraps an already parsed tree. u may be nil.
func New(root *html.Node, u *url.URL) *Document {
	return &Document{root: root, url: u, charset: "utf-8"}
}

// Parse reads an HTML document, decoding it from the charset named by
// contentType, a BOM or a meta declaration. The tree is kept as UTF-8.
func Parse(r io.Reader, contentType string, u *url.URL) (*Document, error) {
	br := bufio.NewReaderSize(r, 1024)
	peek, _ := br.Peek(1024)
	enc, name, _ := charset.DetermineEncoding(peek, contentType)

	root, err := html.Parse(transform.NewReader(br, enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := New(root, u)
	d.charset = name
	if name != "utf-8" {
		rewriteMetaCharset(root)
	}
	return d, nil
}

// ParseString parses a UTF-8 document without a URL.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s), "text/html; charset=utf-8", nil)
}

// Load parses the file at path. The document URL is its file:// URL.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Parse(f, "text/html", &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
}

// URL returns a copy of the document URL, or nil.
func (d *Document) URL() *url.URL {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.url == nil {
		return nil
	}
	u := *d.url
	return &u
}

// Charset is the encoding the document was decoded from.
func (d *Document) Charset() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.charset
}

// Version increases with every Edit.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// FirstIconHref returns the href of the first favicon link in document
// order. ok is false when there is none; a link without href yields "".
func (d *Document) FirstIconHref() (href string, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := firstIcon(d.root)
	if n == nil {
		return "", false
	}
	return attr(n, "href"), true
}

// IconHrefs lists the href of every favicon link.
func (d *Document) IconHrefs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	walk(d.root, func(n *html.Node) {
		if isIconLink(n) {
			out = append(out, attr(n, "href"))
		}
	})
	return out
}

// Edit runs fn with exclusive access to the tree.
func (d *Document) Edit(fn func(e *Editor)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := &Editor{root: d.root}
	fn(e)
	if e.changed {
		d.version++
	}
}

// Render writes the document as UTF-8 HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Save renders the document into path through a temporary file, so
// readers never see a partial page.
func (d *Document) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".favicount-*.html")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := d.Render(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Editor mutates the tree inside Document.Edit.
type Editor struct {
	root    *html.Node
	changed bool
}

// FirstIcon returns the first favicon link node, or nil.
func (e *Editor) FirstIcon() *html.Node { return firstIcon(e.root) }

// Remove detaches n from the tree.
func (e *Editor) Remove(n *html.Node) {
	if n == nil || n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
	e.changed = true
}

// Head returns the head element, creating one when missing. It is nil
// only for an empty tree.
func (e *Editor) Head() *html.Node {
	var head *html.Node
	walk(e.root, func(n *html.Node) {
		if head == nil && n.Type == html.ElementNode && n.DataAtom == atom.Head {
			head = n
		}
	})
	if head != nil {
		return head
	}

	if e.root == nil {
		return nil
	}
	head = &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
	parent := e.root
	walk(e.root, func(n *html.Node) {
		if parent == e.root && n.Type == html.ElementNode && n.DataAtom == atom.Html {
			parent = n
		}
	})
	parent.InsertBefore(head, parent.FirstChild)
	e.changed = true
	return head
}

// AppendLink appends <link type rel href> as the last child of head.
func (e *Editor) AppendLink(typ, rel, href string) *html.Node {
	link := &html.Node{
		Type:     html.ElementNode,
		Data:     "link",
		DataAtom: atom.Link,
		Attr: []html.Attribute{
			{Key: "type", Val: typ},
			{Key: "rel", Val: rel},
			{Key: "href", Val: href},
		},
	}
	head := e.Head()
	if head == nil {
		return nil
	}
	head.AppendChild(link)
	e.changed = true
	return link
}

func firstIcon(root *html.Node) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && isIconLink(n) {
			found = n
		}
	})
	return found
}

func isIconLink(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Link && IsIconRel(attr(n, "rel"))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// rewriteMetaCharset points charset declarations at UTF-8, which is what
// Render produces.
func rewriteMetaCharset(root *html.Node) {
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Meta {
			return
		}
		for i, a := range n.Attr {
			switch {
			case a.Key == "charset":
				n.Attr[i].Val = "utf-8"
			case a.Key == "content" && strings.EqualFold(attr(n, "http-equiv"), "content-type"):
				n.Attr[i].Val = "text/html; charset=utf-8"
			}
		}
	})
}
