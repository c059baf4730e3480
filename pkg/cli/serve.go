package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/pagerender"
	"github.com/vango-dev/pagerender/internal/config"
	"github.com/vango-dev/pagerender/internal/dev"
	"github.com/vango-dev/pagerender/pkg/middleware"
	"github.com/vango-dev/pagerender/pkg/server"
)

type serveOptions struct {
	addr      string
	dev       bool
	tracing   bool
	noMetrics bool
}

func serveCmd(st *state) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pages over HTTP",
		Long: `Serve the pages over HTTP.

In production mode the client build is served from the directory of the
manifest. With --dev the page files are reloaded on every request and
connected browsers reload when the client build or the config changes.

Examples:
  pagerender serve
  pagerender serve --addr=:8080
  pagerender serve --dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := st.loadConfig()
			if err != nil {
				return err
			}
			srv, devServer, err := st.buildServer(cfg, opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), srv, devServer)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Address to listen on (default from config)")
	cmd.Flags().BoolVarP(&opts.dev, "dev", "d", false, "Watch files and reload browsers")
	cmd.Flags().BoolVar(&opts.tracing, "tracing", false, "Start an OpenTelemetry span per request")
	cmd.Flags().BoolVar(&opts.noMetrics, "no-metrics", false, "Disable Prometheus metrics")

	return cmd
}

// buildServer wires the engine, the HTTP server and, with --dev, the
// development server. devServer is nil outside dev mode.
func (st *state) buildServer(cfg *config.Config, opts serveOptions) (*server.Server, *dev.Server, error) {
	logger := newLogger(cfg.Log, st.errOut)
	if opts.dev {
		cfg.Production = false
		cfg.Dev.LiveReload = true
	}

	engineOpts := []pagerender.Option{pagerender.WithLogger(logger.With("component", "pagerender"))}
	var metrics *middleware.Metrics
	if !opts.noMetrics {
		metrics = middleware.Prometheus()
		engineOpts = append(engineOpts, pagerender.WithObserver(metrics))
	}

	var (
		engine    *pagerender.Engine
		devServer *dev.Server
	)
	if opts.dev {
		devServer = dev.NewServer(dev.ServerOptions{
			Config: cfg,
			Invalidate: func() {
				engine.Invalidate()
			},
			Logger: logger,
		})
		if reload := devServer.Reload(); reload != nil {
			engineOpts = append(engineOpts, pagerender.WithHTMLTransformer(reload))
		}
	}

	engine, err := st.newEngine(cfg, opts.dev, engineOpts...)
	if err != nil {
		return nil, nil, err
	}

	serverConfig := server.ConfigFrom(cfg)
	if opts.addr != "" {
		serverConfig.Address = opts.addr
	}
	serverOpts := []server.Option{
		server.WithLogger(logger.With("component", "server")),
		server.WithPageContext(st.app.PageContext),
	}
	if metrics != nil {
		serverOpts = append(serverOpts, server.WithMetrics(metrics, nil))
	}
	if opts.tracing {
		serverOpts = append(serverOpts, server.WithTracing())
	}
	srv := server.New(engine, serverConfig, serverOpts...)

	if devServer != nil && devServer.Reload() != nil {
		srv.Handle(dev.ReloadPath, devServer.Reload())
	}
	if st.app.Setup != nil {
		st.app.Setup(srv)
	}
	return srv, devServer, nil
}

// runServe runs the server and, when given, the dev server until ctx is
// done or one of them fails.
func runServe(ctx context.Context, srv *server.Server, devServer *dev.Server) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return srv.Run(ctx)
	})
	if devServer != nil {
		g.Go(func() error {
			return devServer.Start(ctx)
		})
	}
	return g.Wait()
}
