// Package filetree is the user-facing file tree service. Every operation is
// scoped to one user: paths are resolved through the sandbox, the
// filesystem is mutated first and metadata is brought in line afterwards.
package filetree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"syscall"

	"github.com/starford/marknest/internal/apperr"
	"github.com/starford/marknest/internal/checksum"
	"github.com/starford/marknest/internal/sandbox"
	"github.com/starford/marknest/internal/storage"
	"github.com/starford/marknest/internal/store"
	"github.com/starford/marknest/internal/tree"
)

// NoteExt is the only extension accepted by Write.
const NoteExt = ".md"

var (
	fileNameRe   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	folderNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Service orchestrates sandbox, storage and metadata for one process.
// It is safe for concurrent use.
type Service struct {
	sb     *sandbox.Sandbox
	files  storage.Provider
	db     *store.DB
	notify Notifier
	rec    OpRecorder
	locks  *userLocks
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the sink for change events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notify = n
		}
	}
}

// WithRecorder sets the sink for per-operation outcomes.
func WithRecorder(r OpRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.rec = r
		}
	}
}

// New creates a Service.
func New(sb *sandbox.Sandbox, files storage.Provider, db *store.DB, opts ...Option) *Service {
	s := &Service{
		sb:     sb,
		files:  files,
		db:     db,
		notify: nopNotifier{},
		rec:    nopRecorder{},
		locks:  newUserLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteInput is the payload of Write.
type WriteInput struct {
	Path    string
	Content string
	Title   string // optional, overrides the derived title
	// IfMatch, when set, must equal the ETag of the current content.
	IfMatch string
}

// GetTree returns the user's tree, file nodes decorated with their metadata.
func (s *Service) GetTree(ctx context.Context, userID string) (nodes []tree.Node, err error) {
	defer s.observe("get_tree", &err)

	root, err := s.sb.UserRoot(userID)
	if err != nil {
		return nil, err
	}
	nodes, err = tree.Build(root)
	if err != nil {
		return nil, err
	}
	recs, err := s.db.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storageErr("list metadata", err)
	}
	byPath := store.ByPath(recs)
	tree.Annotate(nodes, func(p string) (tree.Annotation, bool) {
		r, ok := byPath[p]
		return tree.Annotation{ID: r.ID, Title: r.Title, IsPublic: r.IsPublic}, ok
	})
	return nodes, nil
}

// Read returns the content of the file at logical.
func (s *Service) Read(_ context.Context, userID, logical string) (content string, err error) {
	defer s.observe("read", &err)

	abs, err := s.sb.Resolve(userID, logical)
	if err != nil {
		return "", err
	}
	data, err := s.files.Read(abs)
	if err != nil {
		return "", fsErr("read "+logical, err)
	}
	return string(data), nil
}

// Write creates or replaces a note and refreshes its metadata.
func (s *Service) Write(ctx context.Context, userID string, in WriteInput) (rec *store.Record, err error) {
	defer s.observe("write", &err)

	logical, err := sandbox.Normalize(in.Path)
	if err != nil {
		return nil, err
	}
	name := path.Base(logical)
	if path.Ext(name) != NoteExt {
		return nil, fmt.Errorf("filetree: %q must end in %s: %w", logical, NoteExt, apperr.ErrInvalidExtension)
	}
	if !fileNameRe.MatchString(name) {
		return nil, fmt.Errorf("filetree: invalid file name %q: %w", name, apperr.ErrInvalidPath)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	abs, err := s.sb.ResolveEntry(userID, logical)
	if err != nil {
		return nil, err
	}
	if info, statErr := s.files.Stat(abs); statErr == nil && info.IsDir() {
		return nil, fmt.Errorf("filetree: %q is a folder: %w", logical, apperr.ErrInvalidArgument)
	}

	if in.IfMatch != "" {
		current, readErr := s.files.Read(abs)
		if readErr != nil || checksum.ETag(current) != in.IfMatch {
			return nil, fmt.Errorf("filetree: %q changed since it was read: %w", logical, apperr.ErrPreconditionFailed)
		}
	}

	data := []byte(in.Content)
	if err := s.files.Write(abs, data); err != nil {
		if isNotDir(err) {
			return nil, fmt.Errorf("filetree: a parent of %q is a file: %w", logical, apperr.ErrInvalidArgument)
		}
		return nil, storageErr("write "+logical, err)
	}
	rec, err = s.db.Upsert(ctx, store.UpsertParams{
		Owner:    userID,
		Path:     logical,
		Content:  data,
		Title:    in.Title,
		Checksum: checksum.Sum(data),
	})
	if err != nil {
		return nil, storageErr("index "+logical, err)
	}
	s.publish(userID, Event{Type: EventFileWritten, Path: logical, FileID: rec.ID})
	return rec, nil
}

// Delete removes a single file and its metadata record.
func (s *Service) Delete(ctx context.Context, userID, logical string) (err error) {
	defer s.observe("delete", &err)

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
	info, err := s.files.Stat(abs)
	if err != nil {
		return fsErr("delete "+rel, err)
	}
	if info.IsDir() {
		return fmt.Errorf("filetree: %q is a folder, use folder delete: %w", rel, apperr.ErrInvalidArgument)
	}
	if err := s.files.Delete(abs); err != nil {
		return fsErr("delete "+rel, err)
	}
	if err := s.db.Remove(ctx, userID, rel); err != nil {
		return storageErr("deindex "+rel, err)
	}
	s.publish(userID, Event{Type: EventFileDeleted, Path: rel})
	return nil
}

// ToggleVisibility sets the privacy flag of the caller's file record.
func (s *Service) ToggleVisibility(ctx context.Context, userID, fileID string, public bool) (rec *store.Record, err error) {
	defer s.observe("toggle_visibility", &err)

	cur, err := s.db.Get(ctx, fileID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if cur.Owner != userID {
		return nil, fmt.Errorf("filetree: file %s: %w", fileID, apperr.ErrNotAuthorized)
	}
	rec, err = s.db.SetVisibility(ctx, userID, cur.Path, public)
	if err != nil {
		return nil, lookupErr(err)
	}
	s.publish(userID, Event{Type: EventVisibilityChanged, Path: rec.Path, FileID: rec.ID})
	return rec, nil
}

// ListMetadata returns all of the caller's metadata records ordered by path.
func (s *Service) ListMetadata(ctx context.Context, userID string) (recs []store.Record, err error) {
	defer s.observe("list_metadata", &err)

	recs, err = s.db.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storageErr("list metadata", err)
	}
	if recs == nil {
		recs = []store.Record{}
	}
	return recs, nil
}

func (s *Service) observe(op string, err *error) {
	s.rec.ObserveOp(op, *err)
}

func (s *Service) publish(userID string, ev Event) {
	s.notify.Notify(userID, ev)
}

// fsErr maps a storage failure to the error taxonomy: missing entries
// become ErrNotFound, everything else ErrStorageUnavailable. A path running
// through a regular file is missing too.
func fsErr(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || isNotDir(err) {
		return fmt.Errorf("filetree: %s: %w", op, apperr.ErrNotFound)
	}
	return storageErr(op, err)
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}

func storageErr(op string, err error) error {
	if isTaxonomy(err) {
		return fmt.Errorf("filetree: %s: %w", op, err)
	}
	return fmt.Errorf("filetree: %s: %v: %w", op, err, apperr.ErrStorageUnavailable)
}

// lookupErr passes NotFound through and treats anything else as a store outage.
func lookupErr(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return storageErr("lookup", err)
}

func isTaxonomy(err error) bool {
	for _, target := range []error{
		apperr.ErrInvalidPath, apperr.ErrInvalidExtension, apperr.ErrInvalidArgument,
		apperr.ErrNotFound, apperr.ErrAlreadyExists, apperr.ErrNotAuthorized,
		apperr.ErrStorageUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func joinLogical(dir, rel string) string {
	return path.Join(dir, strings.TrimPrefix(rel, "/"))
}
