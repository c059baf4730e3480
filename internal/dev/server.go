package dev

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/pagerender/internal/config"
)

// ServerOptions configures the development server.
type ServerOptions struct {
	// Config is the project configuration.
	Config *config.Config

	// Invalidate drops cached page files and routes. Called before
	// browsers reload.
	Invalidate func()

	// OnConfigChange is called with the config after its file changed and
	// parsed.
	OnConfigChange func(cfg *config.Config)

	// OnReload is called when browsers are reloaded.
	OnReload func(clients int)

	Logger *slog.Logger
}

// Server watches the project and reloads connected browsers when client
// files or the config change. It does not serve pages itself; mount
// Reload() at ReloadPath and pass it to the engine as HTML transformer.
type Server struct {
	config       *config.Config
	options      ServerOptions
	watcher      *Watcher
	reloadServer *ReloadServer
	changeCh     chan Change
	logger       *slog.Logger
	mu           sync.Mutex
	running      bool
}

// NewServer creates a new development server.
func NewServer(options ServerOptions) *Server {
	cfg := options.Config

	watcher := NewWatcher(WatcherConfig{
		Paths:    CollectWatchPaths(cfg),
		Interval: 100 * time.Millisecond,
	})

	var reloadServer *ReloadServer
	if cfg.Dev.LiveReload {
		reloadServer = NewReloadServer()
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:       cfg,
		options:      options,
		watcher:      watcher,
		reloadServer: reloadServer,
		changeCh:     make(chan Change, 64),
		logger:       logger.With("component", "dev"),
	}
}

// Reload returns the reload server, or nil when live reload is disabled.
func (s *Server) Reload() *ReloadServer {
	return s.reloadServer
}

// Start watches for changes and blocks until ctx is done or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.watcher.OnChange(func(c Change) {
		select {
		case s.changeCh <- c:
		default:
			// A batch is already pending; it reloads everything anyway.
		}
	})
	go s.processChanges(ctx)

	s.logger.Info("watching for changes", "paths", s.watcher.config.Paths, "live_reload", s.reloadServer != nil)
	err := s.watcher.Start(ctx)
	s.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop stops the development server.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	s.watcher.Stop()
	if s.reloadServer != nil {
		s.reloadServer.Close()
	}
}

// processChanges serializes file change handling and coalesces bursts.
func (s *Server) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-s.changeCh:
			changes := []Change{change}
			draining := true
			for draining {
				select {
				case next := <-s.changeCh:
					changes = append(changes, next)
				default:
					draining = false
				}
			}
			s.handleChanges(changes)
		}
	}
}

// handleChanges handles a batch of file changes. A config change takes
// effect first; CSS-only batches swap stylesheets without a reload.
func (s *Server) handleChanges(changes []Change) {
	if len(changes) == 0 {
		return
	}

	var hasConfig, hasCSS, hasOther bool
	for _, change := range changes {
		s.logger.Debug("changed", "path", change.Path, "type", change.Type)
		switch change.Type {
		case ChangeConfig:
			hasConfig = true
		case ChangeCSS:
			hasCSS = true
		default:
			hasOther = true
		}
	}

	if hasConfig {
		if !s.reloadConfig() {
			return
		}
		hasOther = true
	}

	if !hasOther && hasCSS {
		for _, change := range changes {
			s.notify(func(r *ReloadServer) { r.NotifyCSS(change.Path) })
		}
		return
	}

	if s.options.Invalidate != nil {
		s.options.Invalidate()
	}
	s.notifyReload()
}

// reloadConfig parses the changed config file. A broken file is shown in
// the browser overlay and keeps the previous config.
func (s *Server) reloadConfig() bool {
	cfg, err := config.LoadFile(s.config.Path())
	if err != nil {
		s.logger.Error("config reload failed", "path", s.config.Path(), "err", err)
		s.notify(func(r *ReloadServer) { r.NotifyError(err.Error()) })
		return false
	}
	s.notify(func(r *ReloadServer) { r.ClearError() })

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	if s.options.OnConfigChange != nil {
		s.options.OnConfigChange(cfg)
	}
	return true
}

func (s *Server) notify(fn func(r *ReloadServer)) {
	if s.reloadServer != nil {
		fn(s.reloadServer)
	}
}

func (s *Server) notifyReload() {
	if s.reloadServer == nil {
		s.logger.Info("files changed; live reload disabled")
		return
	}

	s.reloadServer.NotifyReload()
	clients := s.reloadServer.ClientCount()
	if s.options.OnReload != nil {
		s.options.OnReload(clients)
	}
	s.logger.Info("reloaded browsers", "clients", clients)
}
