package spa

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 200 * time.Millisecond

// Watch reloads the cached index whenever files under the build directory
// change, until ctx is cancelled. A missing build directory is watched for
// through its parent, so a build produced after startup is picked up.
//
// onReload, if non-nil, runs after every reload.
func (s *Server) Watch(ctx context.Context, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if _, statErr := os.Stat(s.root); statErr == nil {
		if err := addDirsRecursive(w, s.root); err != nil {
			return err
		}
	} else {
		parent := filepath.Dir(s.root)
		if err := w.Add(parent); err != nil {
			s.log.Warn("spa: build dir and parent not watchable",
				slog.String("root", s.root), slog.String("error", err.Error()))
			<-ctx.Done()
			return nil
		}
	}

	s.log.Info("spa: watcher started", slog.String("root", s.root))

	// Builds write many files at once; reload once they settle.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time
	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(reloadDelay)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(reloadDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			s.log.Info("spa: watcher stopped")
			return nil

		case <-reloadCh:
			s.reload()
			if onReload != nil {
				onReload()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !s.within(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						s.log.Warn("spa: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			scheduleReload()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error("spa: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// within reports whether name is the build root or below it.
func (s *Server) within(name string) bool {
	rel, err := filepath.Rel(s.root, name)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel))
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
