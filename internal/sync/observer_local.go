package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// localDebounce batches the write bursts a single logical edit produces
// (SQLite touches the db and WAL files several times per transaction).
const localDebounce = 2 * time.Second

// LocalObserver watches the local database file and emits a debounced event
// per burst of writes, so watch mode pushes local edits promptly instead of
// waiting for the next connectivity transition.
type LocalObserver struct {
	dbPath   string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	events   chan struct{}
	debounce time.Duration // overridable in tests
}

// NewLocalObserver watches the directory containing dbPath. Watching the
// directory rather than the file survives WAL checkpoint renames.
func NewLocalObserver(dbPath string, logger *slog.Logger) (*LocalObserver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sync: creating watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(dbPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("sync: watching %s: %w", filepath.Dir(dbPath), err)
	}

	return &LocalObserver{
		dbPath:   dbPath,
		logger:   logger,
		watcher:  watcher,
		events:   make(chan struct{}, 1),
		debounce: localDebounce,
	}, nil
}

// Events returns the debounced local-change channel.
func (o *LocalObserver) Events() <-chan struct{} {
	return o.events
}

// Close stops the underlying watcher.
func (o *LocalObserver) Close() error {
	return o.watcher.Close()
}

// Run forwards debounced write events until ctx is canceled.
func (o *LocalObserver) Run(ctx context.Context) error {
	var timer *time.Timer

	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}

			return ctx.Err()

		case ev, open := <-o.watcher.Events:
			if !open {
				return nil
			}

			if !o.relevant(ev) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(o.debounce)
				timerC = timer.C
			} else {
				timer.Reset(o.debounce)
			}

		case err, open := <-o.watcher.Errors:
			if !open {
				return nil
			}

			o.logger.Warn("local watcher error", slog.String("error", err.Error()))

		case <-timerC:
			timer = nil
			timerC = nil

			select {
			case o.events <- struct{}{}:
			default:
			}
		}
	}
}

// relevant filters directory events down to writes touching the database
// file or its WAL sidecars.
func (o *LocalObserver) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}

	base := filepath.Base(o.dbPath)
	name := filepath.Base(ev.Name)

	return name == base || name == base+"-wal" || name == base+"-shm"
}
