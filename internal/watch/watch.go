// Package watch reconciles file metadata after edits made directly on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/marknest/internal/filetree"
	"github.com/starford/marknest/internal/sandbox"
)

// DefaultDebounce is the quiet period before a user's tree is reconciled.
const DefaultDebounce = 300 * time.Millisecond

// Reconciler resyncs one user's metadata from disk.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) (filetree.ReconcileResult, error)
}

// Callback is called after each reconciliation pass triggered by the watcher.
type Callback func(userID string, res filetree.ReconcileResult)

// Watch starts an fsnotify watcher on the notes base directory and
// reconciles every user whose subtree changed, once per debounce window,
// until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Events outside a user root are ignored.
func Watch(ctx context.Context, base string, rec Reconciler, debounce time.Duration, logger *slog.Logger, cb Callback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, base); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", base))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(userID string) {
		pending[userID] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for userID := range pending {
				delete(pending, userID)
				reconcileUser(ctx, base, userID, rec, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) {
				continue
			}
			userID, ok := owner(base, ev.Name)
			if !ok {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule(userID)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reconcileUser(ctx context.Context, base, userID string, rec Reconciler, logger *slog.Logger, cb Callback) {
	// A removed account takes its root with it; do not provision it again.
	if _, err := os.Stat(filepath.Join(base, sandbox.UserDirPrefix+userID)); err != nil {
		return
	}
	res, err := rec.Reconcile(ctx, userID)
	if err != nil {
		logger.Warn("watcher: reconcile failed", slog.String("user", userID), slog.String("error", err.Error()))
		return
	}
	logger.Debug("watcher: reconciled", slog.String("user", userID),
		slog.Int("indexed", res.Indexed), slog.Int("removed", res.Removed))
	if cb != nil {
		cb(userID, res)
	}
}

// owner maps an absolute path below base to the user whose root contains it.
func owner(base, p string) (string, bool) {
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return sandbox.UserID(first)
}

// ignored skips hidden entries, which include in-flight atomic writes.
func ignored(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
