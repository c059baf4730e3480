package pagerender

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/pagerender/internal/config"
	"github.com/vango-dev/pagerender/pkg/assets"
	"github.com/vango-dev/pagerender/pkg/pagefile"
)

// Option configures an Engine.
type Option func(*Engine)

// Observer receives render metrics. Implementations must be safe for
// concurrent use.
type Observer interface {
	// ObserveRender is called once per RenderPage call. status is 0 when
	// nothing was rendered.
	ObserveRender(pageID string, status int, d time.Duration)

	// ObserveAbort is called for every abort signal the engine consumes.
	ObserveAbort(kind string, status int)

	// ObserveHook is called after every hook invocation.
	ObserveHook(hook, filePath string, d time.Duration, aborted bool, err error)
}

// WithRegistry sets the page files the engine renders.
func WithRegistry(r *pagefile.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithManifest sets the client manifest used in production.
func WithManifest(m *assets.Manifest) Option {
	return func(e *Engine) {
		e.manifest = m
	}
}

// WithManifestPath loads the client manifest from path when the engine is
// created.
func WithManifestPath(path string) Option {
	return func(e *Engine) {
		e.manifestPath = path
	}
}

// WithModuleGraph sets the module graph used to find the styles of a page
// in development.
func WithModuleGraph(g assets.ModuleGraph) Option {
	return func(e *Engine) {
		e.graph = g
	}
}

// WithProduction selects manifest-based asset resolution.
func WithProduction(production bool) Option {
	return func(e *Engine) {
		e.production = production
	}
}

// WithBaseURL sets the URL prefix the app is served under.
func WithBaseURL(base string) Option {
	return func(e *Engine) {
		if base != "" {
			e.baseURL = base
		}
	}
}

// WithBaseAssets sets the prefix of asset URLs. It defaults to the base URL.
func WithBaseAssets(base string) Option {
	return func(e *Engine) {
		e.baseAssets = base
	}
}

// WithTrailingSlash redirects URLs to the form with (true) or without
// (false) a trailing slash.
func WithTrailingSlash(trailing bool) Option {
	return func(e *Engine) {
		e.trailingSlash = &trailing
	}
}

// WithRedirects sets permanent redirects, keyed by route string.
func WithRedirects(redirects map[string]string) Option {
	return func(e *Engine) {
		e.redirects = redirects
	}
}

// WithHTMLTransformer sets a transform applied to every document before
// assets are injected. The dev server uses it for live reload.
func WithHTMLTransformer(t assets.HTMLTransformer) Option {
	return func(e *Engine) {
		e.transformer = t
	}
}

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithTracer records a span per render and per hook.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithSlowRouteThreshold sets the duration after which a route function is
// reported as slow.
func WithSlowRouteThreshold(d time.Duration) Option {
	return func(e *Engine) {
		e.slowRouteThreshold = d
	}
}

// FromConfig applies a project configuration.
func FromConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		WithBaseURL(cfg.BaseURL)(e)
		e.baseAssets = cfg.BaseAssets
		e.production = cfg.Production
		e.redirects = cfg.Redirects
		e.trailingSlash = cfg.TrailingSlash
		if path := cfg.ManifestPath(); path != "" {
			e.manifestPath = path
		}
	}
}
