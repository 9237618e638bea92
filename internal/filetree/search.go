package filetree

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/starford/marknest/internal/apperr"
)

const (
	searchPreviewLen = 100
	searchWorkers    = 8
)

// SearchHit is one file whose content contains the query.
type SearchHit struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Preview string `json:"preview"`
}

// Search returns the caller's notes containing query, case-insensitively,
// ordered by path. The preview is the first matching line.
func (s *Service) Search(ctx context.Context, userID, query string) (hits []SearchHit, err error) {
	defer s.observe("search", &err)

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("filetree: empty search query: %w", apperr.ErrInvalidArgument)
	}
	root, err := s.sb.UserRoot(userID)
	if err != nil {
		return nil, err
	}
	paths, err := s.files.ListFiles(root, NoteExt)
	if err != nil {
		return nil, storageErr("list notes", err)
	}

	found := make([]*SearchHit, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchWorkers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.files.Read(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				// Files removed mid-scan or unreadable are skipped.
				return nil
			}
			if line, ok := matchLine(string(data), q); ok {
				found[i] = &SearchHit{Path: rel, Name: path.Base(rel), Preview: line}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits = []SearchHit{}
	for _, h := range found {
		if h != nil {
			hits = append(hits, *h)
		}
	}
	return hits, nil
}

// matchLine reports whether content contains q and returns the first line
// containing it, or the first line when the match spans lines.
func matchLine(content, q string) (string, bool) {
	if !strings.Contains(strings.ToLower(content), q) {
		return "", false
	}
	lines := strings.Split(content, "\n")
	line := lines[0]
	for _, l := range lines {
		if strings.Contains(strings.ToLower(l), q) {
			line = l
			break
		}
	}
	return truncate(strings.TrimRight(line, "\r"), searchPreviewLen), true
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
