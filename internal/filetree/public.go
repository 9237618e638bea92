package filetree

import (
	"context"
	"time"

	"github.com/starford/marknest/internal/store"
)

// PublicContent is a public note with its body, as served to any reader.
type PublicContent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListPublic returns the cross-user public feed, newest first.
func (s *Service) ListPublic(ctx context.Context, limit, offset int) (notes []store.PublicNote, err error) {
	defer s.observe("list_public", &err)

	notes, err = s.db.ListPublic(ctx, limit, offset)
	if err != nil {
		return nil, storageErr("list public", err)
	}
	return notes, nil
}

// ListPublicByOwner returns one owner's public notes. It fails with
// ErrNotFound when the owner does not exist.
func (s *Service) ListPublicByOwner(ctx context.Context, ownerID string, limit, offset int) (notes []store.PublicNote, err error) {
	defer s.observe("list_public_by_owner", &err)

	if _, err := s.db.UserByID(ctx, ownerID); err != nil {
		return nil, lookupErr(err)
	}
	notes, err = s.db.ListPublicByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, storageErr("list public", err)
	}
	return notes, nil
}

// PublicNote returns the content of a public note. Private, unknown or
// vanished files all yield ErrNotFound.
func (s *Service) PublicNote(ctx context.Context, fileID string) (note *PublicContent, err error) {
	defer s.observe("public_note", &err)

	rec, err := s.db.GetPublic(ctx, fileID)
	if err != nil {
		return nil, lookupErr(err)
	}
	abs, err := s.sb.Resolve(rec.Owner, rec.Path)
	if err != nil {
		return nil, err
	}
	data, err := s.files.Read(abs)
	if err != nil {
		return nil, fsErr("read public "+fileID, err)
	}
	return &PublicContent{
		ID:        rec.ID,
		Title:     rec.Title,
		Content:   string(data),
		Author:    rec.Username,
		AuthorID:  rec.Owner,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// RemoveUser deletes the account, its records and the user's whole root.
func (s *Service) RemoveUser(ctx context.Context, userID string) (err error) {
	defer s.observe("remove_user", &err)

	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return lookupErr(err)
	}
	root, err := s.sb.UserRoot(userID)
	if err != nil {
		return err
	}
	if err := s.files.RemoveTree(root, nil); err != nil {
		return storageErr("remove user root", err)
	}
	return nil
}
