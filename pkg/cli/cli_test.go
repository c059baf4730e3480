package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/pagerender/internal/config"
	"github.com/vango-dev/pagerender/internal/dev"
	perrors "github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/render"
	"github.com/vango-dev/pagerender/pkg/server"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testFiles() map[string]pagefile.Exports {
	page := func(title string) pagefile.Exports {
		return pagefile.Exports{
			"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
				return render.Escape("<html><body><h1>%s</h1><p>%v</p></body></html>", title, pc.Get("user")), nil
			}),
		}
	}
	return map[string]pagefile.Exports{
		"/pages/index.page.server.go":  page("Home"),
		"/pages/hello.page.route.go":   {"route": "/hello/@name"},
		"/pages/hello.page.server.go":  page("Hello"),
		"/pages/_error.page.server.go": page("Error"),
	}
}

func testSource(files map[string]pagefile.Exports) pagefile.Source {
	return func(context.Context) (pagefile.GlobResult, error) {
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
		return g, nil
	}
}

// writeConfig writes a pagerender.yaml into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.YAMLConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, app App, args ...string) (string, error) {
	t.Helper()
	cmd := New(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testApp() App {
	return App{Files: testSource(testFiles())}
}

const quietConfig = "log:\n  level: error\n"

// =============================================================================
// Commands
// =============================================================================

func TestRootCommand(t *testing.T) {
	cmd := New(App{})
	if cmd.Use != "pagerender" {
		t.Errorf("Use = %q, want %q", cmd.Use, "pagerender")
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "prerender", "routes", "version"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing command %q in %v", want, names)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, testApp(), "version", "--short")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("output = %q, want %q", out, version)
	}

	out, err = execute(t, App{Name: "shop"}, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "shop") || !strings.Contains(out, "Go version:") {
		t.Errorf("output = %q, want the app name and Go version", out)
	}
}

func TestRoutesCommand(t *testing.T) {
	cfgPath := writeConfig(t, quietConfig)

	out, err := execute(t, testApp(), "routes", "--config", cfgPath)
	if err != nil {
		t.Fatalf("routes error = %v", err)
	}
	for _, want := range []string{"PAGE", "/pages/hello", "/hello/@name", "string", "/pages/index", "filesystem"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "/pages/_error") {
		t.Errorf("output lists the error page:\n%s", out)
	}
}

func TestRoutesCommandJSON(t *testing.T) {
	cfgPath := writeConfig(t, quietConfig)

	out, err := execute(t, testApp(), "routes", "--json", "-c", cfgPath)
	if err != nil {
		t.Fatalf("routes error = %v", err)
	}

	var infos []routeInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	routes := map[string]routeInfo{}
	for _, info := range infos {
		routes[info.PageID] = info
	}
	if got := routes["/pages/hello"]; got.Route != "/hello/@name" || got.Type != "string" {
		t.Errorf("hello route = %+v", got)
	}
	if got := routes["/pages/index"]; got.Route != "/" || got.Type != "filesystem" {
		t.Errorf("index route = %+v", got)
	}
}

func TestPrerenderCommand(t *testing.T) {
	cfgPath := writeConfig(t, quietConfig+"prerender:\n  outDir: out\n  partial: true\n")
	dir := filepath.Dir(cfgPath)

	out, err := execute(t, testApp(), "prerender", "--config", cfgPath)
	if err != nil {
		t.Fatalf("prerender error = %v", err)
	}
	if !strings.Contains(out, "Prerendered 1 page") {
		t.Errorf("output = %q, want the summary", out)
	}
	if !strings.Contains(out, "skipped /pages/hello") {
		t.Errorf("output = %q, want the skipped page", out)
	}

	for _, name := range []string{"index.html", "index.pageContext.json", "404.html"} {
		if _, err := os.Stat(filepath.Join(dir, "out", name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestPrerenderCommandOutFlag(t *testing.T) {
	cfgPath := writeConfig(t, quietConfig)
	outDir := filepath.Join(t.TempDir(), "public")

	if _, err := execute(t, testApp(), "prerender", "-c", cfgPath, "--out", outDir, "--partial", "--parallel", "1"); err != nil {
		t.Fatalf("prerender error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	if err != nil {
		t.Fatalf("index.html not written: %v", err)
	}
	if !strings.Contains(string(data), "<h1>Home</h1>") {
		t.Errorf("index.html = %q", data)
	}
}

func TestConfigErrors(t *testing.T) {
	t.Run("missing explicit config", func(t *testing.T) {
		_, err := execute(t, testApp(), "routes", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
		if !perrors.HasCode(err, perrors.CodeConfigNotFound) {
			t.Errorf("error = %v, want %s", err, perrors.CodeConfigNotFound)
		}
	})

	t.Run("no page files", func(t *testing.T) {
		cfgPath := writeConfig(t, quietConfig)
		_, err := execute(t, App{}, "routes", "--config", cfgPath)
		if !perrors.IsUsage(err) {
			t.Errorf("error = %v, want usage error", err)
		}
	})
}

// =============================================================================
// Serve
// =============================================================================

func TestBuildServer(t *testing.T) {
	app := testApp()
	app.PageContext = func(r *http.Request) pagecontext.Addendum {
		return pagecontext.Addendum{"user": r.Header.Get("X-User")}
	}
	var setupCalled bool
	app.Setup = func(s *server.Server) {
		setupCalled = true
		s.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}
	st := &state{app: app, out: io.Discard, errOut: io.Discard}

	cfg := config.New()
	cfg.Log.Level = "error"
	srv, devServer, err := st.buildServer(cfg, serveOptions{addr: ":0", noMetrics: true})
	if err != nil {
		t.Fatalf("buildServer() error = %v", err)
	}
	if devServer != nil {
		t.Error("dev server created without --dev")
	}
	if !setupCalled {
		t.Error("Setup was not called")
	}
	if srv.Config().Address != ":0" {
		t.Errorf("Address = %q, want %q", srv.Config().Address, ":0")
	}

	req := httptest.NewRequest("GET", "/hello/alice", nil)
	req.Header.Set("X-User", "alice")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1>Hello</h1><p>alice</p>") {
		t.Errorf("body = %q", body)
	}
	if strings.Contains(body, dev.ReloadPath) {
		t.Error("reload client injected outside dev mode")
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("healthz status = %d, want 204", rec.Code)
	}
}

func TestBuildServerDev(t *testing.T) {
	st := &state{app: testApp(), out: io.Discard, errOut: io.Discard}

	cfg := config.New()
	cfg.Log.Level = "error"
	cfg.Production = true
	srv, devServer, err := st.buildServer(cfg, serveOptions{dev: true, noMetrics: true})
	if err != nil {
		t.Fatalf("buildServer() error = %v", err)
	}
	if devServer == nil || devServer.Reload() == nil {
		t.Fatal("dev mode without a reload server")
	}
	if cfg.Production {
		t.Error("dev mode kept production")
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), dev.ReloadPath) {
		t.Errorf("body lacks the reload client: %q", rec.Body.String())
	}
}

func TestRunServeStopsOnCancel(t *testing.T) {
	st := &state{app: testApp(), out: io.Discard, errOut: io.Discard}
	cfg := config.New()
	cfg.Log.Level = "error"
	srv, _, err := st.buildServer(cfg, serveOptions{addr: "127.0.0.1:0", noMetrics: true})
	if err != nil {
		t.Fatalf("buildServer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runServe(ctx, srv, nil); err != nil {
		t.Errorf("runServe() error = %v", err)
	}
}

// =============================================================================
// Logger
// =============================================================================

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "page_id", "/pages/index")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %q", out)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if entry["msg"] != "shown" || entry["page_id"] != "/pages/index" {
		t.Errorf("entry = %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPlural(t *testing.T) {
	if got := plural(1, "page"); got != "1 page" {
		t.Errorf("plural(1) = %q", got)
	}
	if got := plural(3, "page"); got != "3 pages" {
		t.Errorf("plural(3) = %q", got)
	}
}
