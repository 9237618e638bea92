package api

import (
	"time"

	"github.com/starford/marknest/internal/filetree"
	"github.com/starford/marknest/internal/store"
	"github.com/starford/marknest/internal/tree"
)

// WriteFileRequest is the request body for creating or updating a note.
type WriteFileRequest struct {
	Path    string `json:"path" example:"algorithms/sorting.md" validate:"required"`
	Content string `json:"content" example:"# Sort\n\nBubble sort..."`
	Title   string `json:"title,omitempty" example:"Sorting"`
}

// VisibilityRequest is the request body for toggling a note's privacy.
type VisibilityRequest struct {
	IsPublic *bool `json:"is_public" validate:"required"`
}

// FolderRequest is the request body for creating a folder.
type FolderRequest struct {
	Path string `json:"path" example:"algorithms" validate:"required"`
}

// CopyFolderRequest is the request body for copying a folder.
type CopyFolderRequest struct {
	SourcePath string `json:"source_path" example:"algorithms" validate:"required"`
	DestPath   string `json:"dest_path" example:"algorithms-copy" validate:"required"`
}

// TreeResponse wraps the caller's file tree.
type TreeResponse struct {
	Tree []tree.Node `json:"tree" validate:"required"`
}

// ContentResponse carries a note's raw content.
type ContentResponse struct {
	Path    string `json:"path" example:"algorithms/sorting.md" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// Record is a file metadata record (aliased from the store layer).
type Record = store.Record

// MetadataResponse wraps the caller's metadata records.
type MetadataResponse struct {
	Files []Record `json:"files" validate:"required"`
}

// SearchHit is a single search hit (aliased from the domain layer).
type SearchHit = filetree.SearchHit

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchHit `json:"results" validate:"required"`
	Count   int         `json:"count" example:"1" validate:"required"`
}

// PublicNoteItem is one entry of a public feed. It carries no file path.
type PublicNoteItem struct {
	ID        string    `json:"id" validate:"required"`
	Title     string    `json:"title" example:"Sorting" validate:"required"`
	Preview   string    `json:"preview"`
	Author    string    `json:"author" example:"alice" validate:"required"`
	AuthorID  string    `json:"author_id" validate:"required"`
	CreatedAt time.Time `json:"created_at" validate:"required"`
	UpdatedAt time.Time `json:"updated_at" validate:"required"`
}

// FeedResponse wraps a page of public notes.
type FeedResponse struct {
	Notes  []PublicNoteItem `json:"notes" validate:"required"`
	Limit  int              `json:"limit" example:"20"`
	Offset int              `json:"offset" example:"0"`
}

// PublicContent is a public note with content (aliased from the domain layer).
type PublicContent = filetree.PublicContent

// UserResponse is the public view of an account.
type UserResponse = store.User

func feedItems(notes []store.PublicNote) []PublicNoteItem {
	items := make([]PublicNoteItem, len(notes))
	for i, n := range notes {
		items[i] = PublicNoteItem{
			ID:        n.ID,
			Title:     n.Title,
			Preview:   n.Preview,
			Author:    n.Username,
			AuthorID:  n.Owner,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		}
	}
	return items
}
