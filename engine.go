// Package pagerender renders pages of a file-based web application.
//
// Given a URL, the Engine finds the page handling it, loads the page files
// that apply (page-local files first, then the default files of the
// enclosing directories), runs the hook pipeline and produces an HTML
// document or, for client-side navigation, the serialized page context:
//
//	reg, err := pagefile.FromGlob(glob)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := pagerender.New(pagerender.WithRegistry(reg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pc, err := engine.RenderPage(ctx, pagerender.Init{URLOriginal: "/hello/eve"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if pc.HTTPResponse == nil {
//	    // nothing to render: fall through to the next handler
//	}
//
// Hooks steer the render with the abort package: abort.Redirect answers
// with a redirect, abort.Render renders another URL in place of the current
// one and abort.RenderStatus renders the error page.
package pagerender

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/assets"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/router"
)

// =============================================================================
// Engine Type
// =============================================================================

// Engine renders pages. It is safe for concurrent use; every call to
// RenderPage owns its page context.
type Engine struct {
	registry *pagefile.Registry
	manifest *assets.Manifest
	graph    assets.ModuleGraph

	// manifestPath is loaded by New when no manifest was given
	manifestPath string

	production    bool
	baseURL       string
	baseAssets    string
	trailingSlash *bool
	redirects     map[string]string
	transformer   assets.HTMLTransformer

	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer

	slowRouteThreshold time.Duration

	runner *hook.Runner
	router *router.Router

	routesMu sync.Mutex
	routes   *router.PageRoutes
}

// New creates an engine. A registry is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		baseURL: "/",
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		return nil, errors.Usagef("pagerender.New() requires a page file registry; pass pagerender.WithRegistry()")
	}
	// A full base URL routes on its path and serves assets from its origin.
	if u, err := url.Parse(e.baseURL); err == nil && u.Host != "" {
		if e.baseAssets == "" {
			e.baseAssets = e.baseURL
		}
		e.baseURL = u.Path
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "pagerender")
	}
	if e.manifest == nil && e.manifestPath != "" {
		m, err := assets.Load(e.manifestPath)
		if err != nil {
			return nil, err
		}
		e.manifest = m
	}
	if e.production && e.manifest == nil {
		e.logger.Warn("production mode without a client manifest; pages render without assets")
	}
	if err := router.AssertRedirects(e.redirects); err != nil {
		return nil, err
	}

	e.runner = &hook.Runner{Tracer: e.tracer}
	if e.observer != nil {
		e.runner.Observe = e.observer.ObserveHook
	}
	e.router = &router.Router{
		Runner:             e.runner,
		Logger:             e.logger,
		BaseURL:            e.baseURL,
		SlowRouteThreshold: e.slowRouteThreshold,
	}
	return e, nil
}

// Registry returns the page file registry.
func (e *Engine) Registry() *pagefile.Registry {
	return e.registry
}

// Runner returns the hook runner used by the engine.
func (e *Engine) Runner() *hook.Runner {
	return e.runner
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// BaseURL returns the URL prefix the app is served under.
func (e *Engine) BaseURL() string {
	return e.baseURL
}

// Production reports whether assets resolve through the manifest.
func (e *Engine) Production() bool {
	return e.production
}

// Routes returns the page routes. They are loaded once in production and
// on every call otherwise, so that edited route files take effect.
func (e *Engine) Routes(ctx context.Context) (*router.PageRoutes, error) {
	if !e.production {
		return router.LoadPageRoutes(ctx, e.registry)
	}

	e.routesMu.Lock()
	defer e.routesMu.Unlock()
	if e.routes != nil {
		return e.routes, nil
	}
	routes, err := router.LoadPageRoutes(ctx, e.registry)
	if err != nil {
		return nil, err
	}
	e.routes = routes
	return routes, nil
}

// Invalidate drops the loaded page files and routes. The dev server calls
// it when source files change.
func (e *Engine) Invalidate() {
	e.registry.Invalidate()
	e.routesMu.Lock()
	e.routes = nil
	e.routesMu.Unlock()
}
