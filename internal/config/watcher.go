package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/handwave-data/handwave/internal/monitoring"
)

// debounceDelay coalesces the burst of filesystem events an editor emits
// for a single save into one reload.
const debounceDelay = 100 * time.Millisecond

// Watcher hot-reloads a tuning file. On every successful reload the
// registered callbacks receive the validated snapshot; a file that fails
// to parse or validate is logged and ignored, keeping the last good
// configuration live.
type Watcher struct {
	path string

	mu       sync.RWMutex
	current  *TuningConfig
	onChange []func(*TuningConfig)

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher loads the file once and prepares a watcher for it. The
// initial load must succeed; a daemon should not start on broken tuning.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    path,
		current: cfg,
		done:    make(chan struct{}),
	}, nil
}

// Current returns the latest validated configuration snapshot.
func (w *Watcher) Current() *TuningConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked with each new validated snapshot.
// Register before Start; callbacks run on the watch goroutine.
func (w *Watcher) OnChange(fn func(*TuningConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins watching the config file's directory. Watching the
// directory rather than the file survives the rename-over-save strategy
// most editors use.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.fsw = fsw
	go w.watchLoop()
	return nil
}

// Stop ends watching. Safe to call once after Start.
func (w *Watcher) Stop() {
	close(w.done)
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			monitoring.Logf("[Config] watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadTuningConfig(w.path)
	if err != nil {
		monitoring.Logf("[Config] reload rejected, keeping previous tuning: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(*TuningConfig){}, w.onChange...)
	w.mu.Unlock()

	monitoring.Logf("[Config] reloaded %s", w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}
