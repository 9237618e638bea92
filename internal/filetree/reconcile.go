package filetree

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/starford/marknest/internal/checksum"
	"github.com/starford/marknest/internal/parser"
	"github.com/starford/marknest/internal/store"
)

// ReconcileResult summarizes a reconciliation pass.
type ReconcileResult struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
}

// Reconcile brings the user's metadata in line with the notes on disk:
// new or changed notes are upserted, records without a file are removed.
// Existing ids and visibility survive.
func (s *Service) Reconcile(ctx context.Context, userID string) (res ReconcileResult, err error) {
	defer s.observe("reconcile", &err)

	unlock := s.locks.lock(userID)
	defer unlock()

	root, err := s.sb.UserRoot(userID)
	if err != nil {
		return res, err
	}
	paths, err := s.files.ListFiles(root, NoteExt)
	if err != nil {
		return res, storageErr("scan notes", err)
	}
	known, err := s.db.Checksums(ctx, userID)
	if err != nil {
		return res, storageErr("load checksums", err)
	}

	onDisk := make(map[string]struct{}, len(paths))
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := s.files.Read(filepath.Join(root, filepath.FromSlash(rel)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return res, storageErr("read "+rel, err)
		}
		onDisk[rel] = struct{}{}

		sum := checksum.Sum(data)
		if prev, ok := known[rel]; ok && prev == sum {
			continue
		}
		title := ""
		if rec, err := s.db.GetByPath(ctx, userID, rel); err == nil {
			title = keptTitle(rec, rel, data)
		}
		if _, err := s.db.Upsert(ctx, store.UpsertParams{
			Owner: userID, Path: rel, Content: data, Title: title, Checksum: sum,
		}); err != nil {
			return res, storageErr("index "+rel, err)
		}
		res.Indexed++
	}

	for rel := range known {
		if _, ok := onDisk[rel]; ok {
			continue
		}
		if err := s.db.Remove(ctx, userID, rel); err != nil {
			return res, storageErr("deindex "+rel, err)
		}
		res.Removed++
	}

	if res.Indexed > 0 || res.Removed > 0 {
		slog.Debug("reconciled", slog.String("user", userID),
			slog.Int("indexed", res.Indexed), slog.Int("removed", res.Removed))
		s.publish(userID, Event{Type: EventReconciled})
	}
	return res, nil
}

// keptTitle preserves a title the user set explicitly unless the note now
// carries its own frontmatter title.
func keptTitle(rec *store.Record, rel string, data []byte) string {
	if parser.Parse(data).Title != "" || rec.Title == store.DeriveTitle(rel) {
		return ""
	}
	return rec.Title
}
