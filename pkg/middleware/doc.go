// Package middleware provides observability for pagerender servers.
//
// # Prometheus Metrics
//
// Metrics implements pagerender.Observer and records:
//   - pagerender_renders_total: renders by page ID and status code
//   - pagerender_render_duration_seconds: render duration histogram
//   - pagerender_aborts_total: intercepted redirects, rewrites and status aborts
//   - pagerender_hook_duration_seconds / pagerender_hook_errors_total: per hook
//   - pagerender_http_requests_total and friends, through Metrics.Handler
//
// Wire it into the engine and the router:
//
//	m := middleware.Prometheus()
//	engine, err := pagerender.New(
//	    pagerender.WithRegistry(files),
//	    pagerender.WithObserver(m),
//	)
//
//	r := chi.NewRouter()
//	r.Use(m.Handler)
//	r.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry
//
// OpenTelemetry starts a server span per request. The engine's render and
// hook spans nest under it when the engine is given a tracer:
//
//	r.Use(middleware.OpenTelemetry(middleware.WithTracerName("my-app")))
//	engine, err := pagerender.New(
//	    pagerender.WithRegistry(files),
//	    pagerender.WithTracer(otel.Tracer("my-app")),
//	)
package middleware
