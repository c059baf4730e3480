// Package server serves a pagerender engine over HTTP.
//
// The server is a chi router: request IDs, panic recovery, optional
// tracing and metrics, then the static client build, then pages.
//
//	engine, err := pagerender.New(pagerender.FromConfig(cfg), pagerender.WithRegistry(files))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv := server.New(engine, server.ConfigFrom(cfg),
//	    server.WithMetrics(middleware.Prometheus(), nil),
//	)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// PageHandler alone mounts pages into an existing router:
//
//	mux.Handle("/", server.PageHandler(engine, server.HandlerOptions{}))
package server
