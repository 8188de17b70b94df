package modmanager

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

func reloadManifest(fs fsx.FS, old *manifest.Manifest) (*manifest.Manifest, error) {
	m, err := manifest.Load(fs, old.Folder, old.Source)
	if err != nil {
		return nil, err
	}
	if err := manifest.LoadExports(fs, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DefaultQuietWindow is the default hot-reload debounce window.
const DefaultQuietWindow = 500 * time.Millisecond

// debounceState names whether a Debouncer is waiting out a fresh quiet
// window or has nothing pending.
type debounceState int

const (
	stateIdle debounceState = iota
	statePending
)

// Debouncer implements the Idle -> Pending(until) quiet-window state
// machine: every Notify restarts the window, and once it elapses with no
// further notifications, every distinct module id that arrived during the
// window is reloaded exactly once.
type Debouncer struct {
	Window time.Duration
	Reload func(moduleID string) error

	mu      sync.Mutex
	state   debounceState
	pending map[string]bool
	timer   *time.Timer
}

// NewDebouncer returns a Debouncer with the given quiet window (or
// DefaultQuietWindow if window <= 0) that calls reload once per distinct
// module id after the window elapses.
func NewDebouncer(window time.Duration, reload func(moduleID string) error) *Debouncer {
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Debouncer{Window: window, Reload: reload, pending: map[string]bool{}}
}

// Notify records a pending change for moduleID and (re)starts the quiet
// window, as would happen if the file watcher fired again mid-drain.
func (d *Debouncer) Notify(moduleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[moduleID] = true
	d.state = statePending
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.Window, d.drain)
}

func (d *Debouncer) drain() {
	d.mu.Lock()
	ids := make([]string, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	d.pending = map[string]bool{}
	d.state = stateIdle
	d.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		if d.Reload != nil {
			_ = d.Reload(id)
		}
	}
}

// Watch wires a real filesystem watch into a Debouncer: every event under
// a module's watched directory notifies that module's id. Only top-level
// directories are watched directly (matching fsnotify's own non-recursive
// semantics); a module wanting recursive coverage registers each
// subdirectory itself.
type Watch struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer

	mu      sync.Mutex
	byDir   map[string]string // watched dir -> module id
}

// NewWatch opens a new OS-level file watcher reporting into debouncer.
func NewWatch(debouncer *Debouncer) (*Watch, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, rterrors.Wrapf(err, "creating file watcher")
	}
	return &Watch{watcher: w, debouncer: debouncer, byDir: map[string]string{}}, nil
}

// Add registers dir (a module's watchDir, or its folder when unset) as
// the source of change notifications for moduleID.
func (w *Watch) Add(moduleID, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return rterrors.Wrapf(err, "watching %s for module %s", dir, moduleID)
	}
	w.mu.Lock()
	w.byDir[dir] = moduleID
	w.mu.Unlock()
	return nil
}

// Run drains watcher events until ctx is canceled, notifying the
// debouncer of the longest-matching watched directory for each event.
func (w *Watch) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if id, found := w.ownerFor(ev.Name); found {
				w.debouncer.Notify(id)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watch) ownerFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bestDir, bestID := "", ""
	for dir, id := range w.byDir {
		if strings.HasPrefix(path, dir) && len(dir) > len(bestDir) {
			bestDir, bestID = dir, id
		}
	}
	return bestID, bestID != ""
}
