package fallback

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/contentgraph/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven change to the store.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, key string)

// Watch follows the fallback directory with fsnotify and keeps s in step
// with it until ctx is cancelled. Renames trigger a debounced
// reconciliation pass against the directory listing.
func Watch(ctx context.Context, s *Store, dir string, logger *slog.Logger, cb EventCallback) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("fallback watcher: started", slog.String("dir", dir))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	notify := func(kind, key string) {
		if cb != nil {
			cb(kind, key)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("fallback watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(s, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key, isDoc := storage.KeyFromFileName(filepath.Base(ev.Name))
			if !isDoc {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				_, existed := s.Get(key)
				changed, err := s.Reload(key)
				if err != nil {
					logger.Warn("fallback watcher: reload failed",
						slog.String("key", key),
						slog.String("error", err.Error()))
					continue
				}
				if !changed {
					continue
				}
				kind := "updated"
				if !existed {
					kind = "created"
				}
				logger.Debug("fallback watcher: loaded", slog.String("key", key), slog.String("op", kind))
				notify(kind, key)

			case ev.Op&fsnotify.Remove != 0:
				if s.Forget(key) {
					logger.Debug("fallback watcher: removed", slog.String("key", key))
					notify("deleted", key)
				}

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old name only; the new name arrives
				// as a Create if it stays in the directory.
				if s.Forget(key) {
					notify("deleted", key)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("fallback watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile compares the directory listing with the loaded documents,
// dropping vanished keys and loading new or changed ones.
func reconcile(s *Store, logger *slog.Logger, notify func(kind, key string)) {
	metas, err := s.provider.List()
	if err != nil {
		logger.Warn("fallback reconcile: list failed", slog.String("error", err.Error()))
		return
	}
	loaded := s.checksums()

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Key] = m.Checksum
	}
	for key := range loaded {
		if _, ok := disk[key]; !ok && s.Forget(key) {
			notify("deleted", key)
		}
	}
	for key, sum := range disk {
		if loaded[key] == sum {
			continue
		}
		_, existed := loaded[key]
		if changed, err := s.Reload(key); err == nil && changed {
			kind := "updated"
			if !existed {
				kind = "created"
			}
			notify(kind, key)
		}
	}
}
