package storage

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

const tmpPrefix = ".marknest-tmp-"

// FS implements Provider backed by the local file system.
type FS struct {
	dirMode  fs.FileMode
	fileMode fs.FileMode
}

// NewFS creates a new FS provider.
func NewFS() *FS {
	return &FS{dirMode: 0o755, fileMode: 0o644}
}

// Stat returns Lstat info for path.
func (f *FS) Stat(path string) (fs.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("storage: stat: %w", err)
	}
	return info, nil
}

// Read returns the raw bytes of a regular file.
func (f *FS) Read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("storage: read %s: not a regular file: %w", filepath.Base(path), fs.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read: %w", err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	return f.writeFrom(path, bytes.NewReader(content))
}

func (f *FS) writeFrom(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, f.dirMode); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Chmod(f.fileMode); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a single file. Directories are refused.
func (f *FS) Delete(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("storage: delete %s: is a directory", filepath.Base(path))
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// Mkdir creates a directory and its parents.
func (f *FS) Mkdir(path string) error {
	if err := os.MkdirAll(path, f.dirMode); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	return nil
}

// RemoveTree deletes dir file by file and stops at the first failure,
// leaving whatever has not been removed yet in place.
func (f *FS) RemoveTree(dir string, fn VisitFunc) error {
	var files, dirs []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: remove tree: %w", err)
	}

	for _, p := range files {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("storage: remove tree: %w", err)
		}
		if fn != nil {
			rel, _ := filepath.Rel(dir, p)
			if err := fn(filepath.ToSlash(rel)); err != nil {
				return err
			}
		}
	}
	// WalkDir visits parents before children; remove in reverse.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err != nil {
			return fmt.Errorf("storage: remove tree: %w", err)
		}
	}
	return nil
}

// CopyTree duplicates every directory and regular file from src into dst.
// Symbolic links are not copied. The walk stops at the first failure.
func (f *FS) CopyTree(src, dst string, fn VisitFunc) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("storage: copy tree: %s: %w", filepath.Base(dst), fs.ErrExist)
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("storage: copy tree: %w", walkErr)
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return fmt.Errorf("storage: copy tree: %w", err)
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, f.dirMode); err != nil {
				return fmt.Errorf("storage: copy tree: %w", err)
			}
			return nil
		case !d.Type().IsRegular(), strings.HasPrefix(d.Name(), tmpPrefix):
			return nil
		}

		in, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("storage: copy tree: %w", err)
		}
		defer in.Close()
		if err := f.writeFrom(target, in); err != nil {
			return err
		}
		if fn != nil {
			return fn(filepath.ToSlash(rel))
		}
		return nil
	})
}

// ListFiles walks dir with fastwalk and returns sorted slash-separated
// relative paths. Hidden files and directories are skipped.
func (f *FS) ListFiles(dir, ext string) ([]string, error) {
	var (
		mu  sync.Mutex
		out []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if ext != "" && !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	slices.Sort(out)
	return out, nil
}
