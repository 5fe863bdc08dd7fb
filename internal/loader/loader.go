// Package loader fetches and decodes favicon images. A load runs in its
// own goroutine and is observed through a Task.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	_ "github.com/rook-computer/favicount/internal/ico"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedSource = errors.New("loader: unsupported image source")
	ErrUnsupportedFormat = errors.New("loader: unsupported image format")
	ErrCrossOriginDenied = errors.New("loader: cross-origin load denied")
	ErrBadStatus         = errors.New("loader: unexpected HTTP status")
	ErrTooLarge          = errors.New("loader: image exceeds size limit")
)

// DefaultMaxBytes bounds a single image download.
const DefaultMaxBytes = 4 << 20

// maxRedirects matches net/http's default policy.
const maxRedirects = 10

// Image is a decoded base image.
type Image struct {
	image.Image

	// Format is the decoder name ("png", "ico", ...), MediaType the sniffed MIME type.
	Format    string
	MediaType string
	Source    string

	// Tainted is set for cross-origin images loaded without cross-origin
	// authorization. Their pixels may be drawn but not read back.
	Tainted bool
}

// Loader resolves image sources against a document.
type Loader struct {
	// Base is the document URL. An http(s) base defines the document
	// origin; any other base (or nil) leaves the document without one and
	// relative paths are read from Files.
	Base  *url.URL
	Files fs.FS
	HTTP  *http.Client

	// Timeout bounds each load; zero means none.
	Timeout  time.Duration
	MaxBytes int64

	// Observe, when set, is called once per finished load.
	Observe func(src string, err error, elapsed time.Duration)
}

// Task is one in-flight load. Done is closed exactly once, after which
// Result is stable.
type Task struct {
	Source string

	done   chan struct{}
	cancel context.CancelFunc
	img    *Image
	err    error
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel aborts the load if it is still running. The task then finishes
// with a context error.
func (t *Task) Cancel() { t.cancel() }

// Result blocks until the load has finished.
func (t *Task) Result() (*Image, error) {
	<-t.done
	return t.img, t.err
}

// Load starts loading src. With crossOrigin set, cross-origin sources are
// requested anonymously and must be allowed by the server.
func (l *Loader) Load(ctx context.Context, src string, crossOrigin bool) *Task {
	return Start(ctx, src, func(ctx context.Context) (*Image, error) {
		if l.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, l.Timeout)
			defer cancel()
		}
		return l.observe(ctx, src, crossOrigin)
	})
}

// Start runs fn in its own goroutine as a Task for src.
func Start(ctx context.Context, src string, fn func(ctx context.Context) (*Image, error)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{Source: src, done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		t.img, t.err = fn(ctx)
		close(t.done)
	}()
	return t
}

func (l *Loader) observe(ctx context.Context, src string, crossOrigin bool) (*Image, error) {
	start := time.Now()
	img, err := l.load(ctx, src, crossOrigin)
	if l.Observe != nil {
		l.Observe(src, err, time.Since(start))
	}
	return img, err
}

// LoadSync is Load followed by Result.
func (l *Loader) LoadSync(ctx context.Context, src string, crossOrigin bool) (*Image, error) {
	return l.Load(ctx, src, crossOrigin).Result()
}

func (l *Loader) load(ctx context.Context, src string, crossOrigin bool) (*Image, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("%w: empty source", ErrUnsupportedSource)
	}
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		_, data, err := ParseDataURL(src)
		if err != nil {
			return nil, err
		}
		return decode(src, data, false)
	}

	u, err := l.Resolve(src)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return l.fetch(ctx, u, crossOrigin)
	case "", "file":
		return l.readFile(ctx, u)
	}
	return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedSource, u.Scheme)
}

// Resolve turns src into an absolute URL relative to the document.
func (l *Loader) Resolve(src string) (*url.URL, error) {
	ref, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	if l.Base == nil {
		return ref, nil
	}
	return l.Base.ResolveReference(ref), nil
}

// Origin is the document origin, "null" without a network base.
func (l *Loader) Origin() string {
	if l.Base == nil || !isHTTP(l.Base) {
		return "null"
	}
	return origin(l.Base)
}

// CrossOrigin reports whether u would be a cross-origin load.
func (l *Loader) CrossOrigin(u *url.URL) bool {
	if !isHTTP(u) {
		return false
	}
	return origin(u) != l.Origin()
}

func (l *Loader) fetch(ctx context.Context, u *url.URL, anonymous bool) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	cross := l.CrossOrigin(u)
	if cross && anonymous {
		req.Header.Set("Origin", l.Origin())
	}

	resp, err := l.client(anonymous, &cross).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s from %s", ErrBadStatus, resp.Status, u.Redacted())
	}
	if cross && anonymous {
		allowed := resp.Header.Get("Access-Control-Allow-Origin")
		if allowed != "*" && allowed != l.Origin() {
			return nil, fmt.Errorf("%w: %s", ErrCrossOriginDenied, u.Redacted())
		}
	}

	data, err := l.readAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decode(u.String(), data, cross && !anonymous)
}

// client follows redirects like l.HTTP but sets *cross once any hop leaves
// the document origin. Anonymous requests carry the Origin header from
// that hop on.
func (l *Loader) client(anonymous bool, cross *bool) *http.Client {
	base := l.HTTP
	if base == nil {
		base = http.DefaultClient
	}
	c := *base
	next := base.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if next != nil {
			if err := next(req, via); err != nil {
				return err
			}
		} else if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if l.CrossOrigin(req.URL) {
			*cross = true
		}
		if *cross && anonymous {
			req.Header.Set("Origin", l.Origin())
		}
		return nil
	}
	return &c
}

func (l *Loader) readFile(ctx context.Context, u *url.URL) (*Image, error) {
	if l.Files == nil {
		return nil, fmt.Errorf("%w: no file root for %q", ErrUnsupportedSource, u.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if name == "" {
		name = "."
	}
	f, err := l.Files.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	data, err := l.readAll(f)
	if err != nil {
		return nil, err
	}
	return decode(u.String(), data, false)
}

func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// decode sniffs the payload before handing it to the image decoders, so
// documents and vector images fail as unsupported formats.
func decode(src string, data []byte, tainted bool) (*Image, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") || mt.Is("image/svg+xml") {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedFormat, src, mt.String())
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, mt.String(), err)
	}
	return &Image{Image: img, Format: format, MediaType: mt.String(), Source: src, Tainted: tainted}, nil
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

func origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
