package dev

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vango-dev/pagerender/internal/config"
)

// ChangeType classifies a changed file by what it means for rendered pages.
type ChangeType int

const (
	// ChangeAsset is any client file without a more specific type.
	ChangeAsset ChangeType = iota
	ChangeCSS
	ChangeManifest
	ChangeConfig
)

func (t ChangeType) String() string {
	switch t {
	case ChangeCSS:
		return "css"
	case ChangeManifest:
		return "manifest"
	case ChangeConfig:
		return "config"
	default:
		return "asset"
	}
}

// Change is a file that was created, modified or removed.
type Change struct {
	Path    string
	Type    ChangeType
	Removed bool
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files and directory trees to watch.
	Paths []string

	// Ignore holds name patterns (filepath.Match syntax) matched against
	// every path segment below a watched directory. Default: DefaultIgnore.
	Ignore []string

	// Interval is the polling period. Default: 100ms.
	Interval time.Duration
}

// DefaultIgnore skips editor droppings, VCS data and source maps.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"*.map",
	"*.swp",
	"*~",
	".DS_Store",
}

type fileState struct {
	mod  time.Time
	size int64
}

type snapshot map[string]fileState

// Watcher polls the watched paths and reports changed files.
type Watcher struct {
	config WatcherConfig

	mu       sync.Mutex
	onChange func(Change)
	running  bool
	stopCh   chan struct{}
}

// NewWatcher creates a file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if config.Ignore == nil {
		config.Ignore = DefaultIgnore
	}
	return &Watcher{config: config}
}

// OnChange sets the callback for file changes.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start takes a first snapshot and polls until ctx is done or Stop is
// called. Files present in the first snapshot are not reported.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	prev := w.scan()
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			next := w.scan()
			changes := diff(prev, next)
			prev = next

			w.mu.Lock()
			fn := w.onChange
			w.mu.Unlock()
			if fn == nil {
				continue
			}
			for _, c := range changes {
				fn(c)
			}
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning reports whether the watcher is polling.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// scan records the state of every watched file. Missing paths are skipped;
// they show up once created.
func (w *Watcher) scan() snapshot {
	snap := snapshot{}
	for _, root := range w.config.Paths {
		filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if p != root && w.ignored(root, p) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			snap[p] = fileState{mod: info.ModTime(), size: info.Size()}
			return nil
		})
	}
	return snap
}

// ignored matches the ignore patterns against the segments of p below
// root. The segments of root itself never match, so a project living
// under an ignored name keeps working.
func (w *Watcher) ignored(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range w.config.Ignore {
			if ok, _ := filepath.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// diff returns the files created, modified or removed between two
// snapshots, sorted by path.
func diff(prev, next snapshot) []Change {
	var changes []Change
	for p, st := range next {
		old, ok := prev[p]
		if !ok || !st.mod.Equal(old.mod) || st.size != old.size {
			changes = append(changes, Change{Path: p, Type: classifyChange(p)})
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			changes = append(changes, Change{Path: p, Type: classifyChange(p), Removed: true})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// classifyChange determines the type of change from the file name.
func classifyChange(path string) ChangeType {
	switch filepath.Base(path) {
	case "manifest.json":
		return ChangeManifest
	case config.ConfigFileName, config.YAMLConfigFileName:
		return ChangeConfig
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css", ".scss", ".sass", ".less":
		return ChangeCSS
	default:
		return ChangeAsset
	}
}
