package prerender

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/pagerender"
	perrors "github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/render"
)

// =============================================================================
// Test Helpers
// =============================================================================

type memSink struct {
	mu    sync.Mutex
	files map[string]string
	types map[string]string
}

func newMemSink() *memSink {
	return &memSink{files: map[string]string{}, types: map[string]string{}}
}

func (s *memSink) WriteFile(_ context.Context, name, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = string(data)
	s.types[name] = contentType
	return nil
}

func (s *memSink) names() []string {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newTestEngine(t *testing.T, files map[string]pagefile.Exports) *pagerender.Engine {
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
	e, err := pagerender.New(
		pagerender.WithRegistry(reg),
		pagerender.WithProduction(true),
		pagerender.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func page(title string) pagefile.Exports {
	return pagefile.Exports{
		"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
			return render.Escape("<html><body><h1>%s</h1><p>%v</p></body></html>", title, pc.Get("name")), nil
		}),
	}
}

func shopFiles() map[string]pagefile.Exports {
	product := page("Product")
	product["passToClient"] = []string{"name"}
	product["prerender"] = hook.PrerenderFunc(func(context.Context) ([]hook.PrerenderEntry, error) {
		return []hook.PrerenderEntry{
			{URL: "/product/1", PageContext: pagecontext.Addendum{"name": "Hammer"}},
			{URL: "/product/2", PageContext: pagecontext.Addendum{"name": "Saw"}},
		}, nil
	})
	hidden := page("Hidden")
	hidden["doNotPrerender"] = true

	errorPage := pagefile.Exports{
		"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
			return render.Escape("<html><body>Not found: %v</body></html>", pc.Is404 != nil && *pc.Is404), nil
		}),
	}

	return map[string]pagefile.Exports{
		"/pages/index.page.server.go":   page("Home"),
		"/pages/about.page.server.go":   page("About"),
		"/pages/product.page.route.go":  {"route": "/product/@id"},
		"/pages/product.page.server.go": product,
		"/pages/hidden.page.server.go":  hidden,
		"/pages/search.page.route.go":   {"route": "/search/@query"},
		"/pages/search.page.server.go":  page("Search"),
		"/pages/_error.page.server.go":  errorPage,
	}
}

// =============================================================================
// Run
// =============================================================================

func TestRun(t *testing.T) {
	perrors.ResetWarnings()
	e := newTestEngine(t, shopFiles())
	sink := newMemSink()

	result, err := Run(context.Background(), e, Options{Sink: sink, Parallel: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"404.html",
		"about/index.html",
		"about/index.pageContext.json",
		"index.html",
		"index.pageContext.json",
		"product/1/index.html",
		"product/1/index.pageContext.json",
		"product/2/index.html",
		"product/2/index.pageContext.json",
	}
	if got := sink.names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("files = %v, want %v", got, want)
	}

	var urls []string
	for _, p := range result.Pages {
		urls = append(urls, p.URL)
	}
	if got := strings.Join(urls, ","); got != "/,/about,/product/1,/product/2" {
		t.Errorf("pages = %s", got)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "/pages/search" {
		t.Errorf("Skipped = %v, want [/pages/search]", result.Skipped)
	}
	if !result.NotFoundPage {
		t.Error("NotFoundPage = false, want true")
	}

	if html := sink.files["product/2/index.html"]; !strings.Contains(html, "<p>Saw</p>") {
		t.Errorf("product/2 = %q, want the prerender page context", html)
	}
	if ct := sink.types["product/2/index.html"]; ct != ContentTypeHTML {
		t.Errorf("content type = %q, want %q", ct, ContentTypeHTML)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(sink.files["product/1/index.pageContext.json"]), &data); err != nil {
		t.Fatalf("pageContext JSON: %v", err)
	}
	if !strings.Contains(sink.files["product/1/index.pageContext.json"], "Hammer") {
		t.Errorf("pageContext JSON = %s, want the passed name", sink.files["product/1/index.pageContext.json"])
	}
	if html := sink.files["404.html"]; !strings.Contains(html, "Not found: true") {
		t.Errorf("404.html = %q", html)
	}
}

func TestRunNoExtraDir(t *testing.T) {
	e := newTestEngine(t, map[string]pagefile.Exports{
		"/pages/index.page.server.go": page("Home"),
		"/pages/about.page.server.go": page("About"),
	})
	sink := newMemSink()

	result, err := Run(context.Background(), e, Options{Sink: sink, NoExtraDir: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := sink.files["about.html"]; !ok {
		t.Errorf("files = %v, want about.html", sink.names())
	}
	if _, ok := sink.files["about/index.pageContext.json"]; !ok {
		t.Errorf("files = %v, want about/index.pageContext.json", sink.names())
	}
	if result.NotFoundPage {
		t.Error("NotFoundPage = true without an error page")
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name        string
		entries     []hook.PrerenderEntry
		hookErr     error
		noErrorPage bool
		want        string
	}{
		{"relative URL", []hook.PrerenderEntry{{URL: "product/1"}}, nil, false, "must start with /"},
		{"unknown URL", []hook.PrerenderEntry{{URL: "/nowhere/at/all"}}, nil, false, "prerender() of /pages/product.page.server.go returned the URL /nowhere/at/all, which matches no page"},
		{"unknown URL without error page", []hook.PrerenderEntry{{URL: "/nowhere/at/all"}}, nil, true, "prerender() of /pages/product.page.server.go returned the URL /nowhere/at/all, which matches no page"},
		{"URL of another page", []hook.PrerenderEntry{{URL: "/about"}}, nil, false, "which is rendered by /pages/about"},
		{"hook error", nil, errors.New("catalog offline"), false, "catalog offline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := shopFiles()
			if tt.noErrorPage {
				delete(files, "/pages/_error.page.server.go")
			}
			files["/pages/product.page.server.go"]["prerender"] = hook.PrerenderFunc(func(context.Context) ([]hook.PrerenderEntry, error) {
				return tt.entries, tt.hookErr
			})
			_, err := Run(context.Background(), newTestEngine(t, files), Options{Sink: newMemSink()})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Run() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRunSharedPrerenderHook(t *testing.T) {
	files := shopFiles()
	delete(files["/pages/product.page.server.go"], "prerender")
	files["/pages/_default.page.server.go"] = pagefile.Exports{
		"prerender": hook.PrerenderFunc(func(context.Context) ([]hook.PrerenderEntry, error) {
			return []hook.PrerenderEntry{{URL: "/about"}, {URL: "/product/7"}}, nil
		}),
	}
	sink := newMemSink()

	result, err := Run(context.Background(), newTestEngine(t, files), Options{Sink: sink, Partial: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := map[string]string{}
	for _, p := range result.Pages {
		got[p.URL] = p.PageID
	}
	if got["/about"] != "/pages/about" || got["/product/7"] != "/pages/product" {
		t.Errorf("Pages = %+v, want /about and /product/7 from the shared hook", result.Pages)
	}
}

func TestRunRequiresSink(t *testing.T) {
	_, err := Run(context.Background(), newTestEngine(t, shopFiles()), Options{})
	if !perrors.IsUsage(err) {
		t.Errorf("Run() error = %v, want a usage error", err)
	}
}

// =============================================================================
// Sinks
// =============================================================================

func TestFileNames(t *testing.T) {
	tests := []struct {
		url                  string
		html, htmlNoExtraDir string
		pageContext          string
	}{
		{"/", "index.html", "index.html", "index.pageContext.json"},
		{"/about", "about/index.html", "about.html", "about/index.pageContext.json"},
		{"/docs/intro/", "docs/intro/index.html", "docs/intro.html", "docs/intro/index.pageContext.json"},
	}
	for _, tt := range tests {
		if got := htmlFileName(tt.url, false); got != tt.html {
			t.Errorf("htmlFileName(%q) = %q, want %q", tt.url, got, tt.html)
		}
		if got := htmlFileName(tt.url, true); got != tt.htmlNoExtraDir {
			t.Errorf("htmlFileName(%q, noExtraDir) = %q, want %q", tt.url, got, tt.htmlNoExtraDir)
		}
		if got := pageContextFileName(tt.url); got != tt.pageContext {
			t.Errorf("pageContextFileName(%q) = %q, want %q", tt.url, got, tt.pageContext)
		}
	}
}

func TestDirSink(t *testing.T) {
	dir := t.TempDir()
	sink := DirSink{Dir: dir}
	if err := sink.WriteFile(context.Background(), "product/1/index.html", ContentTypeHTML, []byte("<p>1</p>")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "product", "1", "index.html"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "<p>1</p>" {
		t.Errorf("file = %q, want <p>1</p>", data)
	}
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	client := &fakeS3{}
	sink := &S3Sink{Client: client, Bucket: "site", Prefix: "v2"}

	if err := sink.WriteFile(context.Background(), "about/index.html", ContentTypeHTML, []byte("<p>about</p>")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("PutObject called %d times, want 1", len(client.inputs))
	}
	in := client.inputs[0]
	if *in.Bucket != "site" || *in.Key != "v2/about/index.html" {
		t.Errorf("bucket/key = %s/%s, want site/v2/about/index.html", *in.Bucket, *in.Key)
	}
	if *in.ContentType != ContentTypeHTML {
		t.Errorf("ContentType = %q", *in.ContentType)
	}
	if client.bodies[0] != "<p>about</p>" {
		t.Errorf("body = %q", client.bodies[0])
	}

	client.err = errors.New("access denied")
	err := sink.WriteFile(context.Background(), "index.html", ContentTypeHTML, nil)
	if err == nil || !strings.Contains(err.Error(), "v2/index.html") {
		t.Errorf("WriteFile() error = %v, want the key named", err)
	}
}
