package cli

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagerender"
	"github.com/vango-dev/pagerender/internal/config"
	"github.com/vango-dev/pagerender/pkg/prerender"
)

type prerenderOptions struct {
	outDir     string
	parallel   int
	partial    bool
	noExtraDir bool
	bucket     string
}

func prerenderCmd(st *state) *cobra.Command {
	var opts prerenderOptions

	cmd := &cobra.Command{
		Use:   "prerender",
		Short: "Render every page to static files",
		Long: `Render every page to static HTML.

Pages are rendered with the URLs returned by their prerender hooks, and
pages with a static route with their route. The error page is written
as 404.html. Files go to the output directory, or to an S3 bucket when
one is configured.

Examples:
  pagerender prerender
  pagerender prerender --out=public --parallel=8
  pagerender prerender --s3-bucket=my-site`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := st.loadConfig()
			if err != nil {
				return err
			}
			return st.runPrerender(cmd.Context(), cfg, cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "Pages rendered at once (default from config)")
	cmd.Flags().BoolVar(&opts.partial, "partial", false, "Do not warn about pages that cannot be prerendered")
	cmd.Flags().BoolVar(&opts.noExtraDir, "no-extra-dir", false, "Write /about.html instead of /about/index.html")
	cmd.Flags().StringVar(&opts.bucket, "s3-bucket", "", "Upload to this S3 bucket instead of a directory")

	return cmd
}

func (st *state) runPrerender(ctx context.Context, cfg *config.Config, cmd *cobra.Command, opts prerenderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.Log, st.errOut)

	// Prerendering always resolves assets from the client manifest.
	cfg.Production = true
	if opts.bucket != "" {
		cfg.Prerender.S3.Bucket = opts.bucket
	}
	if opts.outDir != "" {
		cfg.Prerender.OutDir = opts.outDir
	}

	runOpts := prerender.OptionsFrom(cfg)
	runOpts.Logger = logger.With("component", "prerender")
	if cmd.Flags().Changed("parallel") {
		runOpts.Parallel = opts.parallel
	}
	if cmd.Flags().Changed("partial") {
		runOpts.Partial = opts.partial
	}
	if cmd.Flags().Changed("no-extra-dir") {
		runOpts.NoExtraDir = opts.noExtraDir
	}

	var target string
	if cfg.Prerender.S3.Bucket != "" {
		sink, err := prerender.NewS3Sink(ctx, cfg.Prerender.S3)
		if err != nil {
			return err
		}
		runOpts.Sink = sink
		target = "s3://" + path.Join(sink.Bucket, sink.Prefix)
	} else {
		dir := cfg.OutDir()
		if opts.outDir != "" {
			dir = opts.outDir
		}
		runOpts.Sink = prerender.DirSink{Dir: dir}
		target = dir
	}

	engine, err := st.newEngine(cfg, false, pagerender.WithLogger(logger.With("component", "pagerender")))
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := prerender.Run(ctx, engine, runOpts)
	if err != nil {
		return err
	}

	for _, page := range result.Pages {
		st.info("%s → %s", page.URL, page.Files[0])
	}
	for _, pageID := range result.Skipped {
		st.warn("skipped %s: no URL to prerender", pageID)
	}
	st.success("Prerendered %s to %s in %s", plural(len(result.Pages), "page"), target,
		time.Since(start).Round(time.Millisecond))
	return nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
