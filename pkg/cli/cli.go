package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagerender"
	"github.com/vango-dev/pagerender/internal/config"
	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/server"
)

// Version information, set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// App describes the application the commands operate on.
type App struct {
	// Name is the command name. Default: "pagerender".
	Name string

	// Short is the one-line description shown in help.
	Short string

	// Files produces the page files. Required. In dev mode it is called
	// again after every change.
	Files pagefile.Source

	// Options are applied after the ones derived from the config.
	Options []pagerender.Option

	// PageContext extends the initial page context of served requests.
	PageContext server.PageContextFunc

	// Setup registers extra routes before the server starts.
	Setup func(s *server.Server)
}

// state is shared by the commands of one root command.
type state struct {
	app        App
	configPath string
	out        io.Writer
	errOut     io.Writer
}

// New creates the root command of app.
//
//	func main() {
//	    cli.Main(cli.App{Files: pages.Glob})
//	}
func New(app App) *cobra.Command {
	if app.Name == "" {
		app.Name = "pagerender"
	}
	if app.Short == "" {
		app.Short = "Render and prerender pages"
	}
	st := &state{app: app}

	rootCmd := &cobra.Command{
		Use:   app.Name,
		Short: app.Short,
		Long: app.Short + `.

Commands read pagerender.yaml or pagerender.json from the working
directory or one of its parents. Without a config file the defaults
apply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			st.out = cmd.OutOrStdout()
			st.errOut = cmd.ErrOrStderr()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "Path to the config file")

	rootCmd.AddCommand(
		serveCmd(st),
		prerenderCmd(st),
		routesCmd(st),
		versionCmd(st),
	)
	return rootCmd
}

// Main runs the root command of app and exits non-zero on error.
func Main(app App) {
	cmd := New(app)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config, or searches for one.
// A missing config file is not an error unless it was named explicitly.
func (st *state) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if st.configPath != "" {
		cfg, err = config.LoadFile(st.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		if errors.HasCode(err, errors.CodeConfigNotFound) {
			return config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newEngine creates the engine of the app with the options derived from
// cfg.
func (st *state) newEngine(cfg *config.Config, reloadEachRequest bool, extra ...pagerender.Option) (*pagerender.Engine, error) {
	if st.app.Files == nil {
		return nil, errors.Usagef("cli.App.Files is required")
	}
	opts := []pagerender.Option{
		pagerender.FromConfig(cfg),
		pagerender.WithRegistry(pagefile.NewRegistryFromSource(st.app.Files, reloadEachRequest)),
	}
	opts = append(opts, extra...)
	opts = append(opts, st.app.Options...)
	return pagerender.New(opts...)
}

// newLogger builds the process logger from the log config.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// success prints a success message.
func (st *state) success(format string, args ...any) {
	fmt.Fprintf(st.out, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func (st *state) info(format string, args ...any) {
	fmt.Fprintf(st.out, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func (st *state) warn(format string, args ...any) {
	fmt.Fprintf(st.out, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
