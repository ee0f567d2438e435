package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/passthrough/internal/monitoring"
)

// Watcher reloads a config file into a Provider whenever it changes on disk.
// Invalid files are logged and ignored so the last good config stays active.
type Watcher struct {
	path     string
	provider *Provider
	watcher  *fsnotify.Watcher

	// reloaded receives the result of every reload attempt when non-nil.
	reloaded chan<- error
}

// NewWatcher watches path. The parent directory is watched so editors that
// replace the file by rename are picked up.
func NewWatcher(path string, provider *Provider) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	clean := filepath.Clean(path)
	if err := fw.Add(filepath.Dir(clean)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(clean), err)
	}
	return &Watcher{path: clean, provider: provider, watcher: fw}, nil
}

// Run processes file events until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.report(w.reload())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			monitoring.Logf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		monitoring.Logf("config reload of %s rejected: %v", w.path, err)
		return err
	}
	if err := w.provider.Update(cfg); err != nil {
		monitoring.Logf("config reload of %s rejected: %v", w.path, err)
		return err
	}
	monitoring.SetDebug(cfg.GetDebug())
	monitoring.Logf("config reloaded from %s (generation %d)", w.path, w.provider.Generation())
	return nil
}

func (w *Watcher) report(err error) {
	if w.reloaded == nil {
		return
	}
	select {
	case w.reloaded <- err:
	default:
	}
}
