package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errNilOnChange = errors.New("watch: onChange must not be nil")

// Watcher delivers reloaded documents until it is closed.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Watch reloads filename under root whenever it is created, written,
// renamed or removed, and passes the result to onChange. Reloads use the
// failure policy of root: a failed bundled load is logged and skipped, a
// failed user-data load delivers the zero T. Reloads are spaced by at
// least the configured reload interval. The watch ends when ctx is done
// or Close is called.
func (l *Loader[T]) Watch(ctx context.Context, filename string, root Root, onChange func(T)) (*Watcher, error) {
	if onChange == nil {
		return nil, errNilOnChange
	}
	path, err := l.roots.Resolve(filename, root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Atomic saves replace the file, so the directory is watched.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{cancel: cancel, done: make(chan struct{})}
	limit := rate.Inf
	if l.reloadInterval > 0 {
		limit = rate.Every(l.reloadInterval)
	}
	limiter := rate.NewLimiter(limit, 1)
	log := l.log.With(zap.String("file", filename), zap.Stringer("root", root))

	go func() {
		defer close(w.done)
		defer func() { w.err = fsw.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Warn("document watch error", zap.Error(err))
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				v, err := l.Load(ctx, filename, root)
				if err != nil {
					continue
				}
				onChange(v)
			}
		}
	}()

	return w, nil
}

// Close stops the watch and waits for an in-flight reload to finish.
func (w *Watcher) Close() error {
	w.cancel()
	<-w.done
	return w.err
}
