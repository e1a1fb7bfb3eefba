package storage

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watch observes one notebook file and calls cb after it changes on
// disk. Rapid write bursts from editors saving via rename are debounced
// so cb fires once per logical save. It blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *zap.Logger, cb func()) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("watcher")

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "resolve watch path")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	// Watch the directory: editors replace files by rename, which
	// drops a watch placed on the file itself.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrap(err, "watch directory")
	}

	logger.Debug("watching notebook", zap.String("path", abs))

	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-fire:
			cb()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			evAbs, _ := filepath.Abs(ev.Name)
			if evAbs != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(100 * time.Millisecond)
				fire = debounce.C
			} else {
				debounce.Reset(100 * time.Millisecond)
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(werr))
		}
	}
}
