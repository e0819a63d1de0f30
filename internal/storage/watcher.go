package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultReloadDelay = 500 * time.Millisecond

type Reloader interface {
	Reload() error
	Path() string
}

// Watcher reloads a store whenever asset files in its directory change.
// Bursts of events are coalesced into one reload.
type Watcher struct {
	store Reloader
	delay time.Duration
}

func NewWatcher(store Reloader, delay time.Duration) *Watcher {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	return &Watcher{store: store, delay: delay}
}

func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	// Ignoring close error - nothing left to clean up at shutdown
	defer func() { _ = fw.Close() }()

	err = fw.Add(w.store.Path())
	if err != nil {
		return fmt.Errorf("watching %s: %w", w.store.Path(), err)
	}

	slog.InfoContext(ctx, "watching for asset changes", "path", w.store.Path())

	timer := time.NewTimer(w.delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !IsAssetFile(event.Name) {
				continue
			}
			slog.DebugContext(ctx, "asset file changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(w.delay)

		case <-timer.C:
			err := w.store.Reload()
			if err != nil {
				slog.WarnContext(ctx, "reloading assets failed, keeping previous set", "path", w.store.Path(), "error", err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}
