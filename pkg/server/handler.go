package server

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vango-dev/pagerender"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
)

// PageContextFunc adds request data to the initial page context, such as
// the authenticated user.
type PageContextFunc func(r *http.Request) pagecontext.Addendum

// HandlerOptions configures PageHandler.
type HandlerOptions struct {
	// Next serves requests no page answers. Default: http.NotFound.
	Next http.Handler

	// PageContext, when set, extends the initial page context.
	PageContext PageContextFunc

	Logger *slog.Logger
}

// PageHandler renders pages with engine. GET and HEAD requests are
// rendered; requests without a response, and other methods, go to
// opts.Next.
//
// Usage errors are logged by the engine and answered with a bare 500: the
// application is broken and no error page can be trusted.
func PageHandler(engine *pagerender.Engine, opts HandlerOptions) http.Handler {
	next := opts.Next
	if next == nil {
		next = http.NotFoundHandler()
	}
	logger := opts.Logger
	if logger == nil {
		logger = engine.Logger()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		init := pagerender.Init{
			URLOriginal: r.URL.RequestURI(),
			HTTPHeaders: headerMap(r.Header),
		}
		if opts.PageContext != nil {
			init.Extra = opts.PageContext(r)
		}

		pc, err := engine.RenderPage(r.Context(), init)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if pc.HTTPResponse == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := pc.HTTPResponse.WriteTo(w); err != nil {
			// Headers are out; the client sees a truncated body.
			logger.Warn("writing response failed", "url", init.URLOriginal, "page_id", pc.PageID, "err", err)
		}
	})
}

// headerMap flattens request headers. Repeated headers are joined the way
// HTTP allows.
func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// staticHandler serves existing files under dir and passes everything else
// to next. prefix is stripped from the URL path first.
func staticHandler(dir, prefix string, next http.Handler) http.Handler {
	files := http.FileServer(http.Dir(dir))
	prefix = strings.TrimSuffix(prefix, "/")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		rest, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok || (rest != "" && rest[0] != '/') {
			next.ServeHTTP(w, r)
			return
		}
		rest = path.Clean("/" + rest)
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rest)))
		if err != nil || info.IsDir() {
			next.ServeHTTP(w, r)
			return
		}

		r2 := r.Clone(r.Context())
		r2.URL.Path = rest
		r2.URL.RawPath = ""
		files.ServeHTTP(w, r2)
	})
}
