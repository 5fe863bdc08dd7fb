package web

import (
	"bytes"
	"net/http"
	"path"
	"strconv"

	"github.com/rook-computer/favicount/internal/assets"
)

// uiPrefix serves the embedded page assets next to the document's own.
const uiPrefix = "/_favicount/"

var scriptTag = []byte(`<script src="` + uiPrefix + assets.ScriptName + `" defer></script>`)

func uiAssetsHandler() http.Handler {
	return http.FileServer(http.FS(assets.WebUI))
}

// documentHandler renders the live document at "/" with the sync script
// added to its head, and serves everything else from the document root.
func documentHandler(deps Deps) http.Handler {
	var files http.Handler = http.NotFoundHandler()
	if deps.Files != nil {
		files = http.FileServer(http.FS(deps.Files))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Clean path to avoid oddities.
		r.URL.Path = path.Clean("/" + r.URL.Path)
		if r.URL.Path != "/" || deps.Doc == nil {
			files.ServeHTTP(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}

		var buf bytes.Buffer
		if err := deps.Doc.Render(&buf); err != nil {
			writeAPIError(w, http.StatusInternalServerError, "render_failed", err.Error())
			return
		}
		page := injectScript(buf.Bytes())

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(page)))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(page)
		}
	})
}

// injectScript puts the sync script right before </head>. Rendered
// documents always have one.
func injectScript(page []byte) []byte {
	i := bytes.Index(page, []byte("</head>"))
	if i < 0 {
		return append(page, scriptTag...)
	}
	out := make([]byte, 0, len(page)+len(scriptTag))
	out = append(out, page[:i]...)
	out = append(out, scriptTag...)
	return append(out, page[i:]...)
}
