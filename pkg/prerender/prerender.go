package prerender

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/pagerender"
	"github.com/vango-dev/pagerender/internal/config"
	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/router"
)

// Content types of the written files.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeJSON = "application/json"
)

// Options configures Run.
type Options struct {
	// Sink receives the files. Required.
	Sink Sink

	// Parallel bounds the number of pages rendered at once.
	// Default: 4.
	Parallel int

	// Partial silences the warning for pages that cannot be prerendered.
	Partial bool

	// NoExtraDir writes /about as about.html instead of about/index.html.
	NoExtraDir bool

	Logger *slog.Logger
}

// OptionsFrom derives options from the project config. The sink is left
// to the caller.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Parallel:   cfg.Prerender.Parallel,
		Partial:    cfg.Prerender.Partial,
		NoExtraDir: cfg.Prerender.NoExtraDir,
	}
}

// Page is a prerendered URL.
type Page struct {
	URL    string
	PageID string

	// Files are the written file names.
	Files []string
}

// Result summarizes a run.
type Result struct {
	// Pages are sorted by URL.
	Pages []Page

	// Skipped lists the pages without a URL to prerender.
	Skipped []string

	// NotFoundPage reports whether 404.html was written.
	NotFoundPage bool
}

// job is a URL to prerender. source names the prerender hook that
// returned it, or is empty for static routes. owners are the pages using
// the hooks that returned the URL.
type job struct {
	url    string
	extra  pagecontext.Addendum
	source string
	owners map[string]bool
}

type runner struct {
	engine *pagerender.Engine
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	pages    []Page
	rendered map[string]bool
}

// Run prerenders every page of engine: the URLs returned by prerender
// hooks first, then the pages with a static route that no hook covered,
// and finally the error page as 404.html. A page exporting doNotPrerender
// is left out.
func Run(ctx context.Context, engine *pagerender.Engine, opts Options) (*Result, error) {
	if opts.Sink == nil {
		return nil, errors.Usagef("prerender.Run() requires a sink")
	}
	if opts.Parallel <= 0 {
		opts.Parallel = config.DefaultParallel
	}
	logger := opts.Logger
	if logger == nil {
		logger = engine.Logger()
	}

	r := &runner{
		engine:   engine,
		opts:     opts,
		logger:   logger,
		rendered: make(map[string]bool),
	}

	routes, err := engine.Routes(ctx)
	if err != nil {
		return nil, err
	}
	excluded, jobs, err := r.collect(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.renderAll(ctx, jobs); err != nil {
		return nil, err
	}

	result := &Result{}
	var static []job
	for _, route := range routes.Routes {
		if r.rendered[route.PageID] || excluded[route.PageID] {
			continue
		}
		url, ok := staticURL(route)
		if !ok {
			if !opts.Partial {
				errors.WarnCode(logger, errors.CodeNoPrerenderURL, route.PageID,
					"page_id", route.PageID, "route", routeLabel(route))
			}
			result.Skipped = append(result.Skipped, route.PageID)
			continue
		}
		static = append(static, job{url: url})
	}
	if err := r.renderAll(ctx, static); err != nil {
		return nil, err
	}

	notFound, err := engine.RenderStatic404Page(ctx)
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		if err := opts.Sink.WriteFile(ctx, "404.html", ContentTypeHTML, []byte(notFound.DocumentHTML)); err != nil {
			return nil, err
		}
		result.NotFoundPage = true
	}

	sort.Slice(r.pages, func(i, j int) bool { return r.pages[i].URL < r.pages[j].URL })
	result.Pages = r.pages
	logger.Info("prerendered", "pages", len(result.Pages), "skipped", len(result.Skipped), "not_found_page", result.NotFoundPage)
	return result, nil
}

// collect runs the prerender hooks. A hook shared by several pages through
// a default file runs once. Entries for the same URL merge their page
// context.
func (r *runner) collect(ctx context.Context) (map[string]bool, []job, error) {
	reg := r.engine.Registry()
	errorPageID := reg.ErrorPageID()

	excluded := make(map[string]bool)
	hooks := make(map[string]hook.PrerenderFunc)
	owners := make(map[string]map[string]bool)
	for _, pageID := range reg.AllPageIDs() {
		if pageID == errorPageID {
			continue
		}
		loaded, err := pagefile.LoadPageFiles(ctx, reg, pageID, pagefile.EnvServer)
		if err != nil {
			return nil, nil, err
		}
		if skip, _ := loaded.Exports[hook.ExportDoNotPrerender].(bool); skip {
			excluded[pageID] = true
			continue
		}
		for _, s := range loaded.Sources {
			if s.Caps != nil && s.Caps.Prerender != nil {
				hooks[s.FilePath] = s.Caps.Prerender
				if owners[s.FilePath] == nil {
					owners[s.FilePath] = make(map[string]bool)
				}
				owners[s.FilePath][pageID] = true
			}
		}
	}

	var mu sync.Mutex
	byURL := make(map[string]*job)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)
	for filePath, fn := range hooks {
		filePath, fn := filePath, fn
		g.Go(func() error {
			entries, err := r.engine.Runner().Prerender(gctx, fn, filePath)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, entry := range entries {
				if !strings.HasPrefix(entry.URL, "/") {
					return errors.Usagef("prerender() of %s returned the URL %q; URLs must start with /", filePath, entry.URL)
				}
				j, ok := byURL[entry.URL]
				if !ok {
					j = &job{url: entry.URL, source: filePath, extra: pagecontext.Addendum{}, owners: map[string]bool{}}
					byURL[entry.URL] = j
				}
				for pageID := range owners[filePath] {
					j.owners[pageID] = true
				}
				for k, v := range entry.PageContext {
					j.extra[k] = v
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	jobs := make([]job, 0, len(byURL))
	for _, j := range byURL {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].url < jobs[k].url })
	return excluded, jobs, nil
}

func (r *runner) renderAll(ctx context.Context, jobs []job) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			return r.render(gctx, j)
		})
	}
	return g.Wait()
}

func (r *runner) render(ctx context.Context, j job) error {
	res, err := r.engine.PrerenderPage(ctx, pagerender.Init{
		URLOriginal: withBase(r.engine.BaseURL(), j.url),
		Extra:       j.extra,
	})
	if err != nil {
		if j.source == "" {
			return fmt.Errorf("prerendering %s: %w", j.url, err)
		}
		if errors.HasCode(err, errors.CodePrerenderNoPage) {
			return errors.Usagef("prerender() of %s returned the URL %s, which matches no page", j.source, j.url)
		}
		return fmt.Errorf("prerendering %s returned by prerender() of %s: %w", j.url, j.source, err)
	}
	pc := res.PageContext
	if j.source != "" && !j.owners[pc.PageID] {
		return errors.Usagef("prerender() of %s returned the URL %s, which is rendered by %s; a prerender hook may only return URLs of the pages using it",
			j.source, j.url, pc.PageID)
	}

	page := Page{
		URL:    j.url,
		PageID: pc.PageID,
		Files:  []string{htmlFileName(j.url, r.opts.NoExtraDir), pageContextFileName(j.url)},
	}
	if err := r.opts.Sink.WriteFile(ctx, page.Files[0], ContentTypeHTML, []byte(res.DocumentHTML)); err != nil {
		return err
	}
	if err := r.opts.Sink.WriteFile(ctx, page.Files[1], ContentTypeJSON, []byte(res.PageContextJSON)); err != nil {
		return err
	}
	r.logger.Debug("prerendered page", "url", j.url, "page_id", pc.PageID)

	r.mu.Lock()
	r.pages = append(r.pages, page)
	r.rendered[pc.PageID] = true
	r.mu.Unlock()
	return nil
}

// staticURL returns the URL of a route matching exactly one URL.
func staticURL(route router.PageRoute) (string, bool) {
	switch route.Type {
	case router.RouteFilesystem:
		return route.RouteString, true
	case router.RouteString:
		if router.IsStaticRouteString(route.RouteString) {
			return route.RouteString, true
		}
	}
	return "", false
}

func routeLabel(route router.PageRoute) string {
	if route.RouteString != "" {
		return route.RouteString
	}
	return route.Type.String() + " route in " + route.DefinedAt
}

func withBase(base, url string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return url
	}
	if url == "/" {
		return base + "/"
	}
	return base + url
}
