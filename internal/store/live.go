package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Live holds the current snapshot behind an atomic pointer. Readers pin a
// snapshot for the duration of a query; writers build a new Memory and
// Swap it in, so in-flight queries never observe a partial update.
type Live struct {
	cur     atomic.Pointer[Memory]
	version atomic.Uint64
}

// NewLive wraps an initial snapshot.
func NewLive(m *Memory) *Live {
	l := &Live{}
	l.cur.Store(m)
	l.version.Store(1)
	return l
}

// Snapshot returns the current snapshot.
func (l *Live) Snapshot() *Memory { return l.cur.Load() }

// Swap installs m and returns the new version number.
func (l *Live) Swap(m *Memory) uint64 {
	l.cur.Store(m)
	return l.version.Add(1)
}

// Version increases by one on every Swap.
func (l *Live) Version() uint64 { return l.version.Load() }

const watchDebounce = 250 * time.Millisecond

// Watch reloads the snapshot whenever the database file at path (or its WAL)
// changes, until ctx is cancelled. Reload failures are logged and the
// previous snapshot stays in place.
func Watch(ctx context.Context, path string, live *Live, load func() (*Memory, error), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	base := filepath.Base(path)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// -shm changes on every read and is ignored.
			if name := filepath.Base(ev.Name); name != base && name != base+"-wal" {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("store watcher error", "path", path, "error", err)

		case <-timer.C:
			m, err := load()
			if err != nil {
				logger.Warn("reload snapshot failed", "path", path, "error", err)
				continue
			}
			v := live.Swap(m)
			logger.Info("reloaded snapshot", "path", path, "entities", m.Len(), "version", v)
		}
	}
}
