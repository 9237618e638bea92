package tree

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/marknest/internal/apperr"
)

// Build walks root and returns its top-level entries. Within each folder,
// subfolders come first, then files, each group ordered by byte-wise name.
// Hidden entries are skipped. Symlinks are followed only when they stay
// inside root and do not point at one of their own ancestors.
func Build(root string) ([]Node, error) {
	canon, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("tree: resolve root: %v: %w", err, apperr.ErrStorageUnavailable)
	}
	b := &builder{root: canon, ancestors: map[string]struct{}{canon: {}}}
	return b.walk(canon, "")
}

type builder struct {
	root      string
	ancestors map[string]struct{}
}

func (b *builder) walk(dir, rel string) ([]Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("tree: read %q: %v: %w", rel, err, apperr.ErrStorageUnavailable)
	}

	folders := make([]Node, 0)
	files := make([]Node, 0)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childRel := path.Join(rel, name)
		target := filepath.Join(dir, name)
		isDir := e.IsDir()

		if e.Type()&fs.ModeSymlink != 0 {
			resolved, ok := b.follow(target)
			if !ok {
				continue
			}
			info, err := os.Stat(resolved)
			if err != nil {
				continue
			}
			target, isDir = resolved, info.IsDir()
		}

		if !isDir {
			files = append(files, &FileNode{Name: name, Path: childRel})
			continue
		}
		if _, cycle := b.ancestors[target]; cycle {
			continue
		}
		b.ancestors[target] = struct{}{}
		children, err := b.walk(target, childRel)
		delete(b.ancestors, target)
		if err != nil {
			return nil, err
		}
		folders = append(folders, &FolderNode{Name: name, Path: childRel, Children: children})
	}

	byName := func(a, b Node) int { return strings.Compare(a.NodeName(), b.NodeName()) }
	slices.SortFunc(folders, byName)
	slices.SortFunc(files, byName)
	return append(folders, files...), nil
}

// follow resolves a symlink and reports whether it stays inside the root.
func (b *builder) follow(link string) (string, bool) {
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(b.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}
