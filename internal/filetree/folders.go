package filetree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/marknest/internal/apperr"
	"github.com/starford/marknest/internal/checksum"
	"github.com/starford/marknest/internal/sandbox"
	"github.com/starford/marknest/internal/store"
)

// CreateFolder creates the folder at logical together with missing parents.
func (s *Service) CreateFolder(_ context.Context, userID, logical string) (err error) {
	defer s.observe("create_folder", &err)

	rel, err := folderPath(logical)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	abs, err := s.sb.Resolve(userID, rel)
	if err != nil {
		return err
	}
	if err := s.ensureAbsent(abs, rel); err != nil {
		return err
	}
	if err := s.files.Mkdir(abs); err != nil {
		if isNotDir(err) {
			return fmt.Errorf("filetree: a parent of %q is a file: %w", rel, apperr.ErrInvalidArgument)
		}
		return storageErr("create folder "+rel, err)
	}
	s.publish(userID, Event{Type: EventFolderCreated, Path: rel})
	return nil
}

// DeleteFolder removes the folder and everything below it, dropping the
// metadata of each file as it goes. It stops at the first failure.
func (s *Service) DeleteFolder(ctx context.Context, userID, logical string) (err error) {
	defer s.observe("delete_folder", &err)

	rel, err := sandbox.Normalize(logical)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	abs, err := s.sb.ResolveEntry(userID, rel)
	if err != nil {
		return err
	}
	if err := s.requireDir(abs, rel); err != nil {
		return err
	}
	err = s.files.RemoveTree(abs, func(child string) error {
		if err := s.db.Remove(ctx, userID, joinLogical(rel, child)); err != nil {
			return storageErr("deindex "+child, err)
		}
		return nil
	})
	if err != nil {
		return storageErr("delete folder "+rel, err)
	}
	// Sweep records whose file was already missing from disk.
	if _, err := s.db.RemoveUnder(ctx, userID, rel); err != nil {
		return storageErr("deindex "+rel, err)
	}
	s.publish(userID, Event{Type: EventFolderDeleted, Path: rel})
	return nil
}

// CopyFolder duplicates src into dst. Every copied note gets a fresh,
// private metadata record; the source and its records are untouched.
func (s *Service) CopyFolder(ctx context.Context, userID, src, dst string) (err error) {
	defer s.observe("copy_folder", &err)

	srcRel, err := sandbox.Normalize(src)
	if err != nil {
		return err
	}
	dstRel, err := folderPath(dst)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	srcAbs, err := s.sb.Resolve(userID, srcRel)
	if err != nil {
		return err
	}
	if err := s.requireDir(srcAbs, srcRel); err != nil {
		return err
	}
	dstAbs, err := s.sb.Resolve(userID, dstRel)
	if err != nil {
		return err
	}
	if err := s.ensureAbsent(dstAbs, dstRel); err != nil {
		return err
	}
	if inside(srcAbs, dstAbs) {
		return fmt.Errorf("filetree: cannot copy %q into itself: %w", srcRel, apperr.ErrInvalidArgument)
	}

	srcRecs, err := s.db.ListByOwner(ctx, userID)
	if err != nil {
		return storageErr("list metadata", err)
	}
	titles := store.ByPath(srcRecs)

	err = s.files.CopyTree(srcAbs, dstAbs, func(child string) error {
		if path.Ext(child) != NoteExt {
			return nil
		}
		return s.indexCopy(ctx, userID, filepath.Join(dstAbs, filepath.FromSlash(child)),
			joinLogical(dstRel, child), titles[joinLogical(srcRel, child)].Title)
	})
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("filetree: %q: %w", dstRel, apperr.ErrAlreadyExists)
		}
		return storageErr("copy "+srcRel, err)
	}
	s.publish(userID, Event{Type: EventFolderCopied, Path: srcRel, Dest: dstRel})
	return nil
}

// indexCopy creates a new record for a copied note. A stale record at the
// destination path is dropped first so the copy gets its own id.
func (s *Service) indexCopy(ctx context.Context, userID, abs, logical, title string) error {
	data, err := s.files.Read(abs)
	if err != nil {
		return storageErr("read copy "+logical, err)
	}
	if err := s.db.Remove(ctx, userID, logical); err != nil {
		return storageErr("index copy "+logical, err)
	}
	_, err = s.db.Upsert(ctx, store.UpsertParams{
		Owner:    userID,
		Path:     logical,
		Content:  data,
		Title:    title,
		Checksum: checksum.Sum(data),
	})
	if err != nil {
		return storageErr("index copy "+logical, err)
	}
	return nil
}

// requireDir checks that an existing directory is at abs.
func (s *Service) requireDir(abs, logical string) error {
	info, err := s.files.Stat(abs)
	if err != nil {
		return fsErr("folder "+logical, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filetree: %q is not a folder: %w", logical, apperr.ErrInvalidArgument)
	}
	return nil
}

func (s *Service) ensureAbsent(abs, logical string) error {
	_, err := s.files.Stat(abs)
	switch {
	case err == nil:
		return fmt.Errorf("filetree: %q: %w", logical, apperr.ErrAlreadyExists)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case isNotDir(err):
		return fmt.Errorf("filetree: a parent of %q is a file: %w", logical, apperr.ErrInvalidArgument)
	default:
		return storageErr("stat "+logical, err)
	}
}

// folderPath normalizes logical and checks the name of its last segment.
func folderPath(logical string) (string, error) {
	rel, err := sandbox.Normalize(logical)
	if err != nil {
		return "", err
	}
	if name := path.Base(rel); !folderNameRe.MatchString(name) {
		return "", fmt.Errorf("filetree: invalid folder name %q: %w", name, apperr.ErrInvalidPath)
	}
	return rel, nil
}

// inside reports whether p is dir or below it.
func inside(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
