package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dyike/StockPilot/internal/logger"
)

// Watch reloads the file whenever something other than this Manager edits it
// and passes the result to onChange. Bursts of events within the debounce
// window produce one reload. Calling Watch again only swaps the callback.
// The watcher stops with ctx.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watcher != nil {
		m.mu.Unlock()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.watcher = w
	m.mu.Unlock()

	// editors often replace the file, so watch its directory
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	go m.watchLoop(ctx, w, &debouncer{delay: m.debounce})
	return nil
}

// debouncer runs the last scheduled function once delay has passed without
// another call.
type debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (d *debouncer) schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, db *debouncer) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "config watcher error", "error", err)
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if m.touchesConfig(evt) && !m.writing.Load() {
				db.schedule(func() { m.reload(ctx) })
			}
		}
	}
}

func (m *Manager) touchesConfig(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
		return false
	}
	return evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename)
}

// reload reads the edited file. An invalid file is logged and ignored; a
// deleted one is recreated from the defaults.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := readConfigFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = *DefaultConfigWithRoot(filepath.Dir(m.path))
		err = writeConfigFile(m.path, cfg)
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "config reload failed", err, "path", m.path)
		return
	}
	if !reflect.DeepEqual(cfg, m.Get()) {
		m.replace(cfg)
	}
}
