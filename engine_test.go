package pagerender

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/abort"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/render"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestEngine builds an engine over files, keyed by file path.
func newTestEngine(t *testing.T, files map[string]pagefile.Exports, opts ...Option) *Engine {
	t.Helper()
	g := pagefile.GlobResult{
		IsGeneratedFile: true,
		PageFilesLazy: map[pagefile.FileType]map[string]pagefile.Loader{
			pagefile.TypeView:   {},
			pagefile.TypeServer: {},
			pagefile.TypeClient: {},
			pagefile.TypeRoute:  {},
		},
	}
	for p, exports := range files {
		exports := exports
		g.PageFilesLazy[pagefile.DetermineFileType(p)][p] = func(context.Context) (pagefile.Exports, error) {
			return exports, nil
		}
	}
	reg, err := pagefile.FromGlob(g)
	if err != nil {
		t.Fatalf("FromGlob() error = %v", err)
	}
	e, err := New(append([]Option{WithRegistry(reg), WithLogger(discardLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func renderHTML(format string, args ...any) hook.RenderFunc {
	return func(context.Context, *pagecontext.PageContext) (any, error) {
		return render.Escape(format, args...), nil
	}
}

// errorPage renders "Page not found" or "Something went wrong".
var errorPage = pagefile.Exports{
	"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
		msg := "Something went wrong"
		if pc.Is404 != nil && *pc.Is404 {
			msg = "Page not found"
		}
		return render.Escape("<html><body><h1>%s</h1><p>%v</p></body></html>", msg, pc.AbortReason), nil
	}),
}

func mustRender(t *testing.T, e *Engine, url string) *pagecontext.PageContext {
	t.Helper()
	pc, err := e.RenderPage(context.Background(), Init{URLOriginal: url})
	if err != nil {
		t.Fatalf("RenderPage(%q) error = %v", url, err)
	}
	return pc
}

func body(t *testing.T, pc *pagecontext.PageContext) string {
	t.Helper()
	if pc.HTTPResponse == nil {
		t.Fatal("HTTPResponse = nil")
	}
	b, err := pc.HTTPResponse.GetBody(context.Background())
	if err != nil {
		t.Fatalf("GetBody() error = %v", err)
	}
	return b
}

// =============================================================================
// Rendering
// =============================================================================

func TestRenderPageHelloEve(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/hello.page.route.go": {"route": "/hello/@name"},
		"/pages/hello.page.go":       {"Page": "HelloPage"},
		"/pages/hello.page.server.go": {
			"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
				return render.Escape("<html><body>Hello %s</body></html>", pc.RouteParams["name"]), nil
			}),
		},
	})

	pc := mustRender(t, e, "/hello/eve")
	if pc.PageID != "/pages/hello" {
		t.Errorf("PageID = %q, want /pages/hello", pc.PageID)
	}
	if got := pc.RouteParams["name"]; got != "eve" {
		t.Errorf("RouteParams[name] = %q, want eve", got)
	}
	if pc.Get("Page") != "HelloPage" {
		t.Errorf("Page = %v, want HelloPage", pc.Get("Page"))
	}
	if pc.HTTPResponse.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", pc.HTTPResponse.StatusCode)
	}
	if !strings.HasPrefix(pc.HTTPResponse.ContentType, "text/html") {
		t.Errorf("ContentType = %q, want text/html", pc.HTTPResponse.ContentType)
	}
	html := body(t, pc)
	for _, want := range []string{
		"Hello eve",
		"<head>",
		`<script id="pagerender_pageContext" type="application/json">`,
		`"_pageId":"/pages/hello"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("body %q does not contain %q", html, want)
		}
	}
}

func TestRenderPageEscapesParams(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/hello.page.route.go": {"route": "/hello/@name"},
		"/pages/hello.page.server.go": {
			"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
				return render.Escape("<p>%s</p>", pc.RouteParams["name"]), nil
			}),
		},
	})

	html := body(t, mustRender(t, e, "/hello/%3Cb%3E"))
	if strings.Contains(html, "<b>") {
		t.Errorf("body %q contains unescaped param", html)
	}
	if !strings.Contains(html, "&lt;b&gt;") {
		t.Errorf("body %q does not contain escaped param", html)
	}
}

func TestRenderPageRenderNothing(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/about.page.server.go": {
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				return nil, nil
			}),
		},
	})

	pc := mustRender(t, e, "/about")
	if pc.HTTPResponse != nil {
		t.Errorf("HTTPResponse = %+v, want nil", pc.HTTPResponse)
	}
}

func TestRenderPageCascade(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/_default.page.server.go": {
			"onBeforeRender": hook.OnBeforeRenderFunc(func(context.Context, *pagecontext.PageContext) (pagecontext.Addendum, error) {
				return pagecontext.Addendum{"title": "Default title", "lang": "en"}, nil
			}),
			"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
				return render.Escape("<title>%s</title><p>%s</p>", pc.Get("title"), pc.Get("lang")), nil
			}),
		},
		"/pages/about.page.server.go": {
			"onBeforeRender": hook.OnBeforeRenderFunc(func(ctx context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error) {
				if _, err := hook.RunInherited(ctx, pc); err != nil {
					return nil, err
				}
				return pagecontext.Addendum{"title": "About"}, nil
			}),
		},
	})

	html := body(t, mustRender(t, e, "/about"))
	if !strings.Contains(html, "<title>About</title>") {
		t.Errorf("body %q: page-local onBeforeRender should win", html)
	}
	if !strings.Contains(html, "<p>en</p>") {
		t.Errorf("body %q: inherited onBeforeRender should contribute lang", html)
	}
}

func TestRenderPageInheritedGuardSkipped(t *testing.T) {
	allow := hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error { return nil })
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/_default.page.server.go": {"guard": allow, "render": renderHTML("<p>ok</p>")},
		"/pages/admin.page.server.go":    {"guard": allow},
	})

	pc, err := e.RenderPage(context.Background(), Init{URLOriginal: "/admin"})
	if !errors.HasCode(err, errors.CodeInheritedHookSkipped) {
		t.Fatalf("RenderPage() error = %v, want %s", err, errors.CodeInheritedHookSkipped)
	}
	if pc.HTTPResponse != nil {
		t.Error("usage errors must not produce a response")
	}
}

func TestRenderPageStringRenderResultIsUsageError(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				return "<p>raw</p>", nil
			}),
		},
		"/pages/_error.page.server.go": errorPage,
	})

	pc, err := e.RenderPage(context.Background(), Init{URLOriginal: "/"})
	if !errors.HasCode(err, errors.CodeStringRenderResult) {
		t.Fatalf("RenderPage() error = %v, want %s", err, errors.CodeStringRenderResult)
	}
	if pc.HTTPResponse != nil {
		t.Error("usage errors must not produce a response")
	}
}

func TestRenderPageStream(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {
			"passToClient": []string{"late"},
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				return hook.RenderResult{
					DocumentHTML: render.Escape("<html><head></head><body>%s</body></html>", render.Stream(strings.NewReader("streamed"))),
					PageContextFunc: func(context.Context) (pagecontext.Addendum, error) {
						return pagecontext.Addendum{"late": "value"}, nil
					},
				}, nil
			}),
		},
	})

	pc := mustRender(t, e, "/")
	if !pc.HTTPResponse.IsStream() {
		t.Fatal("IsStream() = false, want true")
	}
	if _, err := pc.HTTPResponse.Body(); !errors.HasCode(err, errors.CodeStreamBody) {
		t.Errorf("Body() error = %v, want %s", err, errors.CodeStreamBody)
	}
	html := body(t, pc)
	if !strings.Contains(html, "streamed") {
		t.Errorf("body %q does not contain the stream", html)
	}
	if !strings.Contains(html, `"late":"value"`) {
		t.Errorf("body %q: page context resolved after the stream is missing", html)
	}
}

func TestRenderPageStreamError(t *testing.T) {
	failing := io.MultiReader(strings.NewReader("partial"), iotestErrReader{stderrors.New("socket closed")})
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {"render": renderHTML("<html><body>%s</body></html>", render.Stream(failing))},
	})

	pc := mustRender(t, e, "/")
	html := body(t, pc)
	if !strings.Contains(html, "partial") {
		t.Errorf("body %q does not contain the part streamed before the error", html)
	}
	if pc.ErrorWhileStreaming() == nil {
		t.Error("ErrorWhileStreaming() = nil after a failed stream")
	}
	if pc.ErrorWhileRendering == nil {
		t.Error("ErrorWhileRendering = nil after a failed stream")
	}
}

type iotestErrReader struct{ err error }

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }

// =============================================================================
// Abort Signals
// =============================================================================

func TestRenderPageGuardRedirect(t *testing.T) {
	var renders int
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/admin.page.server.go": {
			"guard": hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error {
				return abort.Redirect("/login")
			}),
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				renders++
				return render.Escape("<p>secret</p>"), nil
			}),
		},
	})

	pc := mustRender(t, e, "/admin")
	if renders != 0 {
		t.Errorf("render called %d times, want 0", renders)
	}
	if pc.HTTPResponse.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302", pc.HTTPResponse.StatusCode)
	}
	if got := pc.HTTPResponse.Header.Get("Location"); got != "/login" {
		t.Errorf("Location = %q, want /login", got)
	}
}

func TestRenderPageRedirectWithBaseURL(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/admin.page.server.go": {
			"guard": hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error {
				return abort.Redirect("/login", 301)
			}),
		},
	}, WithBaseURL("/app/"))

	pc := mustRender(t, e, "/app/admin")
	if got := pc.HTTPResponse.Header.Get("Location"); got != "/app/login" {
		t.Errorf("Location = %q, want /app/login", got)
	}
	if pc.HTTPResponse.StatusCode != http.StatusMovedPermanently {
		t.Errorf("StatusCode = %d, want 301", pc.HTTPResponse.StatusCode)
	}
}

func TestRenderPageRewrite(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/old.page.server.go": {
			"guard": hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error {
				return abort.Render("/new", "moved")
			}),
		},
		"/pages/new.page.server.go": {
			"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
				return render.Escape("<p>%s %s reason=%v</p>", pc.URLPathname, pc.URLOriginal, pc.AbortReason), nil
			}),
		},
	})

	pc := mustRender(t, e, "/old")
	if pc.PageID != "/pages/new" {
		t.Errorf("PageID = %q, want /pages/new", pc.PageID)
	}
	if pc.AbortReason != "moved" {
		t.Errorf("AbortReason = %v, want %q", pc.AbortReason, "moved")
	}
	html := body(t, pc)
	if !strings.Contains(html, "<p>/new /old reason=moved</p>") {
		t.Errorf("body %q: want rewritten pathname, original URL and reason", html)
	}
	if !strings.Contains(html, `"abortReason":"moved"`) {
		t.Errorf("body %q: want abortReason in the serialized page context", html)
	}
}

func TestRenderPageRewriteWithoutReason(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/old.page.server.go": {
			"guard": hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error {
				return abort.Render("/new")
			}),
		},
		"/pages/new.page.server.go": {"render": renderHTML("new")},
	})

	pc := mustRender(t, e, "/old")
	if pc.AbortReason != nil {
		t.Errorf("AbortReason = %v, want nil", pc.AbortReason)
	}
	if html := body(t, pc); strings.Contains(html, "abortReason") {
		t.Errorf("body %q: want no abortReason", html)
	}
}

func TestRenderPageAbortLoop(t *testing.T) {
	to := func(url string) hook.GuardFunc {
		return func(context.Context, *pagecontext.PageContext) error {
			return abort.Render(url)
		}
	}
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/a.page.server.go": {"guard": to("/b"), "render": renderHTML("a")},
		"/pages/b.page.server.go": {"guard": to("/a"), "render": renderHTML("b")},
	})

	_, err := e.RenderPage(context.Background(), Init{URLOriginal: "/a"})
	if !errors.HasCode(err, errors.CodeInfiniteAbortLoop) {
		t.Fatalf("RenderPage() error = %v, want %s", err, errors.CodeInfiniteAbortLoop)
	}
	if !strings.Contains(err.Error(), "render('/b') => render('/a')") {
		t.Errorf("error %q does not name the URL chain", err)
	}
}

func TestRenderPageAbortStatus(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/admin.page.server.go": {
			"guard": hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error {
				return abort.RenderStatus(403, "admins only")
			}),
			"render": renderHTML("secret"),
		},
		"/pages/_error.page.server.go": errorPage,
	})

	pc := mustRender(t, e, "/admin")
	if pc.HTTPResponse.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", pc.HTTPResponse.StatusCode)
	}
	if pc.AbortStatusCode != 403 {
		t.Errorf("AbortStatusCode = %d, want 403", pc.AbortStatusCode)
	}
	if pc.Is404 == nil || *pc.Is404 {
		t.Errorf("Is404 = %v, want false", pc.Is404)
	}
	html := body(t, pc)
	if !strings.Contains(html, "admins only") {
		t.Errorf("body %q does not contain the abort reason", html)
	}
	if !strings.Contains(html, `"abortReason":"admins only"`) {
		t.Errorf("body %q: abort reason should be passed to the client", html)
	}
}

// =============================================================================
// Error Page
// =============================================================================

func TestRenderPageNotFound(t *testing.T) {
	t.Run("without error page", func(t *testing.T) {
		e := newTestEngine(t, map[string]pagefile.Exports{
			"/pages/index.page.server.go": {"render": renderHTML("home")},
		})
		pc := mustRender(t, e, "/missing")
		if pc.HTTPResponse != nil {
			t.Errorf("HTTPResponse = %+v, want nil", pc.HTTPResponse)
		}
	})

	t.Run("with error page", func(t *testing.T) {
		e := newTestEngine(t, map[string]pagefile.Exports{
			"/pages/index.page.server.go":  {"render": renderHTML("home")},
			"/pages/_error.page.server.go": errorPage,
		})
		pc := mustRender(t, e, "/missing")
		if pc.HTTPResponse.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", pc.HTTPResponse.StatusCode)
		}
		if pc.Is404 == nil || !*pc.Is404 {
			t.Errorf("Is404 = %v, want true", pc.Is404)
		}
		if html := body(t, pc); !strings.Contains(html, "Page not found") {
			t.Errorf("body %q does not come from the error page", html)
		}
	})

	t.Run("error page is not routable", func(t *testing.T) {
		e := newTestEngine(t, map[string]pagefile.Exports{
			"/pages/_error.page.server.go": errorPage,
		})
		pc := mustRender(t, e, "/_error")
		if pc.HTTPResponse.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", pc.HTTPResponse.StatusCode)
		}
	})
}

func TestRenderPageHookErrorRendersErrorPage(t *testing.T) {
	errDB := stderrors.New("database unavailable")
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {
			"onBeforeRender": hook.OnBeforeRenderFunc(func(context.Context, *pagecontext.PageContext) (pagecontext.Addendum, error) {
				return nil, errDB
			}),
			"render": renderHTML("home"),
		},
		"/pages/_error.page.server.go": errorPage,
	})

	pc := mustRender(t, e, "/")
	if pc.HTTPResponse.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", pc.HTTPResponse.StatusCode)
	}
	if !stderrors.Is(pc.ErrorWhileRendering, errDB) {
		t.Errorf("ErrorWhileRendering = %v, want %v", pc.ErrorWhileRendering, errDB)
	}
	var he *hook.Error
	if !stderrors.As(pc.ErrorWhileRendering, &he) || he.Hook != "onBeforeRender" {
		t.Errorf("ErrorWhileRendering = %#v, want a *hook.Error of onBeforeRender", pc.ErrorWhileRendering)
	}
	if html := body(t, pc); !strings.Contains(html, "Something went wrong") {
		t.Errorf("body %q does not come from the error page", html)
	}
}

func TestRenderPageHookPanic(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				panic("nil map")
			}),
		},
		"/pages/_error.page.server.go": errorPage,
	})

	pc := mustRender(t, e, "/")
	if pc.HTTPResponse.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", pc.HTTPResponse.StatusCode)
	}
	var he *hook.Error
	if !stderrors.As(pc.ErrorWhileRendering, &he) || he.Panic != "nil map" {
		t.Errorf("ErrorWhileRendering = %v, want the recovered panic", pc.ErrorWhileRendering)
	}
}

func TestRenderPageErrorPageLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	errDB := stderrors.New("database exploded")

	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				return nil, errDB
			}),
		},
		// The error page fails with the very same error.
		"/pages/_error.page.server.go": {
			"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
				return nil, pc.ErrorWhileRendering
			}),
		},
	}, WithLogger(logger))

	pc, err := e.RenderPage(context.Background(), Init{URLOriginal: "/"})
	if err != nil {
		t.Fatalf("RenderPage() error = %v, want the error to be swallowed", err)
	}
	if pc.HTTPResponse != nil {
		t.Errorf("HTTPResponse = %+v, want nil", pc.HTTPResponse)
	}
	if !stderrors.Is(pc.ErrorWhileRendering, errDB) {
		t.Errorf("ErrorWhileRendering = %v, want the original error", pc.ErrorWhileRendering)
	}
	if n := strings.Count(buf.String(), "database exploded"); n != 1 {
		t.Errorf("error logged %d times, want 1; log:\n%s", n, buf.String())
	}
}

func TestRenderPageSecondaryErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				return nil, stderrors.New("first failure")
			}),
		},
		"/pages/_error.page.server.go": {
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				return nil, stderrors.New("second failure")
			}),
		},
	}, WithLogger(logger))

	pc := mustRender(t, e, "/")
	if pc.HTTPResponse != nil {
		t.Errorf("HTTPResponse = %+v, want nil", pc.HTTPResponse)
	}
	if pc.ErrorWhileRendering == nil || !strings.Contains(pc.ErrorWhileRendering.Error(), "first failure") {
		t.Errorf("ErrorWhileRendering = %v, want the first failure", pc.ErrorWhileRendering)
	}
	for _, want := range []string{"first failure", "second failure"} {
		if n := strings.Count(buf.String(), want); n != 1 {
			t.Errorf("%q logged %d times, want 1", want, n)
		}
	}
}

// =============================================================================
// Client-side Navigation
// =============================================================================

func TestRenderPageClientSideNavigation(t *testing.T) {
	var renders int
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/hello.page.route.go": {"route": "/hello/@name"},
		"/pages/hello.page.server.go": {
			"passToClient": []string{"greeting"},
			"onBeforeRender": hook.OnBeforeRenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error) {
				return pagecontext.Addendum{"greeting": "hi " + pc.RouteParams["name"], "secret": "s3cr3t"}, nil
			}),
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				renders++
				return render.Escape("<p>page</p>"), nil
			}),
		},
	})

	pc := mustRender(t, e, "/hello/eve/index.pageContext.json")
	if !pc.IsClientSideNavigation {
		t.Error("IsClientSideNavigation = false")
	}
	if renders != 0 {
		t.Errorf("render called %d times, want 0", renders)
	}
	if pc.HTTPResponse.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want application/json", pc.HTTPResponse.ContentType)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(body(t, pc)), &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got["_pageId"] != "/pages/hello" {
		t.Errorf("_pageId = %v, want /pages/hello", got["_pageId"])
	}
	if got["greeting"] != "hi eve" {
		t.Errorf("greeting = %v, want hi eve", got["greeting"])
	}
	if _, ok := got["secret"]; ok {
		t.Error("keys outside passToClient must not be serialized")
	}
}

func TestRenderPageClientSideNavigationFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]pagefile.Exports
		url   string
		want  string
	}{
		{
			name:  "not found",
			files: map[string]pagefile.Exports{"/pages/index.page.server.go": {"render": renderHTML("home")}},
			url:   "/missing/index.pageContext.json",
			want:  `{"pageContext404PageDoesNotExist":true}`,
		},
		{
			name: "server side error",
			files: map[string]pagefile.Exports{
				"/pages/index.page.server.go": {
					"onBeforeRender": hook.OnBeforeRenderFunc(func(context.Context, *pagecontext.PageContext) (pagecontext.Addendum, error) {
						return nil, stderrors.New("boom")
					}),
				},
			},
			url:  "/index.pageContext.json",
			want: `{"serverSideError":true}`,
		},
		{
			name: "redirect",
			files: map[string]pagefile.Exports{
				"/pages/index.page.server.go": {
					"guard": hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error {
						return abort.Redirect("/login")
					}),
				},
			},
			url:  "/index.pageContext.json",
			want: `{"_urlRedirect":{"statusCode":302,"url":"/login"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.files)
			pc := mustRender(t, e, tt.url)
			if got := body(t, pc); got != tt.want {
				t.Errorf("body = %s, want %s", got, tt.want)
			}
		})
	}
}

// =============================================================================
// URL Handling
// =============================================================================

func TestRenderPageURLHandling(t *testing.T) {
	files := map[string]pagefile.Exports{
		"/pages/index.page.server.go": {"render": renderHTML("<p>home</p>")},
		"/pages/about.page.server.go": {"render": renderHTML("<p>about</p>")},
	}

	tests := []struct {
		name         string
		opts         []Option
		url          string
		wantNil      bool
		wantStatus   int
		wantLocation string
	}{
		{name: "favicon", url: "/favicon.ico", wantNil: true},
		{name: "outside base URL", opts: []Option{WithBaseURL("/app")}, url: "/about", wantNil: true},
		{name: "inside base URL", opts: []Option{WithBaseURL("/app")}, url: "/app/about", wantStatus: 200},
		{
			name:         "config redirect",
			opts:         []Option{WithRedirects(map[string]string{"/old/@id": "/new/@id"})},
			url:          "/old/42",
			wantStatus:   301,
			wantLocation: "/new/42",
		},
		{
			name:         "add trailing slash",
			opts:         []Option{WithTrailingSlash(true)},
			url:          "/about?x=1",
			wantStatus:   301,
			wantLocation: "/about/?x=1",
		},
		{
			name:         "remove trailing slash",
			opts:         []Option{WithTrailingSlash(false)},
			url:          "/about/",
			wantStatus:   301,
			wantLocation: "/about",
		},
		{name: "root keeps its slash", opts: []Option{WithTrailingSlash(false)}, url: "/", wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, files, tt.opts...)
			pc := mustRender(t, e, tt.url)
			if tt.wantNil {
				if pc.HTTPResponse != nil {
					t.Errorf("HTTPResponse = %+v, want nil", pc.HTTPResponse)
				}
				return
			}
			if pc.HTTPResponse == nil {
				t.Fatal("HTTPResponse = nil")
			}
			if pc.HTTPResponse.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", pc.HTTPResponse.StatusCode, tt.wantStatus)
			}
			if got := pc.HTTPResponse.Header.Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
		})
	}
}

func TestNewRequiresRegistry(t *testing.T) {
	if _, err := New(); !errors.IsUsage(err) {
		t.Errorf("New() error = %v, want a usage error", err)
	}
}

func TestNewRejectsInvalidRedirects(t *testing.T) {
	reg, err := pagefile.NewRegistry(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(WithRegistry(reg), WithRedirects(map[string]string{"/a": "/b/@id"}))
	if !errors.HasCode(err, errors.CodeConfigInvalid) {
		t.Errorf("New() error = %v, want %s", err, errors.CodeConfigInvalid)
	}
}

// =============================================================================
// Prerendering
// =============================================================================

func TestPrerenderPage(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/about.page.server.go": {
			"passToClient": []string{"title"},
			"onBeforeRender": hook.OnBeforeRenderFunc(func(context.Context, *pagecontext.PageContext) (pagecontext.Addendum, error) {
				return pagecontext.Addendum{"title": "About"}, nil
			}),
			"render": renderHTML("<html><body>about</body></html>"),
		},
	})

	res, err := e.PrerenderPage(context.Background(), Init{URLOriginal: "/about"})
	if err != nil {
		t.Fatalf("PrerenderPage() error = %v", err)
	}
	if !strings.Contains(res.DocumentHTML, "about") {
		t.Errorf("DocumentHTML = %q", res.DocumentHTML)
	}
	if !strings.Contains(res.PageContextJSON, `"title":"About"`) {
		t.Errorf("PageContextJSON = %s, want title", res.PageContextJSON)
	}
}

func TestPrerenderPageFailures(t *testing.T) {
	tests := []struct {
		name     string
		render   hook.RenderFunc
		wantCode string
	}{
		{"stream", renderHTML("<p>%s</p>", render.Stream(strings.NewReader("x"))), errors.CodePrerenderStream},
		{"no document", func(context.Context, *pagecontext.PageContext) (any, error) { return nil, nil }, errors.CodePrerenderNoDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, map[string]pagefile.Exports{
				"/pages/index.page.server.go": {"render": tt.render},
			})
			_, err := e.PrerenderPage(context.Background(), Init{URLOriginal: "/"})
			if !errors.HasCode(err, tt.wantCode) {
				t.Errorf("PrerenderPage() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestPrerenderPageNoPage(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]pagefile.Exports
	}{
		{"without error page", map[string]pagefile.Exports{
			"/pages/index.page.server.go": {"render": renderHTML("<p>home</p>")},
		}},
		{"with error page", map[string]pagefile.Exports{
			"/pages/index.page.server.go":  {"render": renderHTML("<p>home</p>")},
			"/pages/_error.page.server.go": {"render": renderHTML("<p>not found</p>")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.files)
			_, err := e.PrerenderPage(context.Background(), Init{URLOriginal: "/missing"})
			if !errors.HasCode(err, errors.CodePrerenderNoPage) {
				t.Errorf("PrerenderPage() error = %v, want %s", err, errors.CodePrerenderNoPage)
			}
		})
	}
}

func TestPrerenderPageHookErrorFails(t *testing.T) {
	errDB := stderrors.New("offline")
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {
			"render": hook.RenderFunc(func(context.Context, *pagecontext.PageContext) (any, error) {
				return nil, errDB
			}),
		},
		"/pages/_error.page.server.go": errorPage,
	})

	if _, err := e.PrerenderPage(context.Background(), Init{URLOriginal: "/"}); !stderrors.Is(err, errDB) {
		t.Errorf("PrerenderPage() error = %v, want %v", err, errDB)
	}
}

func TestRenderStatic404Page(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": {"render": renderHTML("home")},
	})
	res, err := e.RenderStatic404Page(context.Background())
	if err != nil || res != nil {
		t.Errorf("RenderStatic404Page() without error page = %v, %v; want nil, nil", res, err)
	}

	e = newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go":  {"render": renderHTML("home")},
		"/pages/_error.page.server.go": errorPage,
	})
	res, err = e.RenderStatic404Page(context.Background())
	if err != nil {
		t.Fatalf("RenderStatic404Page() error = %v", err)
	}
	if !strings.Contains(res.DocumentHTML, "Page not found") {
		t.Errorf("DocumentHTML = %q, want the 404 page", res.DocumentHTML)
	}
	if !strings.Contains(res.PageContextJSON, `"is404":true`) {
		t.Errorf("PageContextJSON = %s, want is404", res.PageContextJSON)
	}
}

// =============================================================================
// Observer
// =============================================================================

type recordingObserver struct {
	mu      sync.Mutex
	renders []string
	aborts  []string
	hooks   []string
}

func (o *recordingObserver) ObserveRender(pageID string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renders = append(o.renders, pageID+" "+http.StatusText(status))
}

func (o *recordingObserver) ObserveAbort(kind string, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aborts = append(o.aborts, kind)
}

func (o *recordingObserver) ObserveHook(name, _ string, _ time.Duration, _ bool, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, name)
}

func TestRenderPageObserver(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/old.page.server.go": {
			"guard": hook.GuardFunc(func(context.Context, *pagecontext.PageContext) error {
				return abort.Render("/new")
			}),
		},
		"/pages/new.page.server.go": {"render": renderHTML("<p>new</p>")},
	}, WithObserver(obs))

	mustRender(t, e, "/old")

	if len(obs.renders) != 1 || obs.renders[0] != "/pages/new OK" {
		t.Errorf("renders = %v, want [/pages/new OK]", obs.renders)
	}
	if len(obs.aborts) != 1 || obs.aborts[0] != "rewrite" {
		t.Errorf("aborts = %v, want [rewrite]", obs.aborts)
	}
	if want := []string{"guard", "render"}; strings.Join(obs.hooks, ",") != strings.Join(want, ",") {
		t.Errorf("hooks = %v, want %v", obs.hooks, want)
	}
}
