package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestWriteAndRead(t *testing.T) {
	s := NewFS()
	p := filepath.Join(t.TempDir(), "note.md")
	content := []byte("# Hello\nWorld\n")
	if err := s.Write(p, content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := NewFS()
	p := filepath.Join(t.TempDir(), "a", "b", "c.md")
	if err := s.Write(p, []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteEmptyContent(t *testing.T) {
	s := NewFS()
	p := filepath.Join(t.TempDir(), "empty.md")
	if err := s.Write(p, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("content = %q, want empty", got)
	}
}

func TestReadDirectoryIsNotExist(t *testing.T) {
	s := NewFS()
	if _, err := s.Read(t.TempDir()); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewFS()
	p := filepath.Join(t.TempDir(), "del.md")
	_ = s.Write(p, []byte("bye"))
	if err := s.Delete(p); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(p); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist reading deleted file, got %v", err)
	}
	if err := s.Delete(p); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second delete err = %v, want ErrNotExist", err)
	}
}

func TestDeleteRefusesDirectory(t *testing.T) {
	s := NewFS()
	dir := filepath.Join(t.TempDir(), "folder")
	_ = s.Mkdir(dir)
	if err := s.Delete(dir); err == nil {
		t.Error("expected error deleting a directory")
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := NewFS()
	dir := t.TempDir()
	p := filepath.Join(dir, "atomic.md")
	_ = s.Write(p, []byte("original content"))

	if err := s.Write(p, []byte("updated content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read(p)
	if string(got) != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, tmpPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestCopyTree(t *testing.T) {
	s := NewFS()
	root := t.TempDir()
	src := filepath.Join(root, "a")
	_ = s.Write(filepath.Join(src, "x.md"), []byte("x"))
	_ = s.Write(filepath.Join(src, "y", "z.md"), []byte("z"))
	_ = s.Mkdir(filepath.Join(src, "empty"))

	var visited []string
	err := s.CopyTree(src, filepath.Join(root, "b"), func(rel string) error {
		visited = append(visited, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("CopyTree: %v", err)
	}
	if want := []string{"x.md", "y/z.md"}; !reflect.DeepEqual(visited, want) {
		t.Errorf("visited = %v, want %v", visited, want)
	}
	got, err := s.Read(filepath.Join(root, "b", "y", "z.md"))
	if err != nil || string(got) != "z" {
		t.Errorf("copied content = %q, %v", got, err)
	}
	if info, err := os.Stat(filepath.Join(root, "b", "empty")); err != nil || !info.IsDir() {
		t.Errorf("empty dir not copied: %v", err)
	}
}

func TestCopyTreeDestinationExists(t *testing.T) {
	s := NewFS()
	root := t.TempDir()
	_ = s.Mkdir(filepath.Join(root, "a"))
	_ = s.Mkdir(filepath.Join(root, "b"))
	if err := s.CopyTree(filepath.Join(root, "a"), filepath.Join(root, "b"), nil); !errors.Is(err, fs.ErrExist) {
		t.Errorf("err = %v, want ErrExist", err)
	}
}

func TestCopyTreeStopsOnVisitError(t *testing.T) {
	s := NewFS()
	root := t.TempDir()
	src := filepath.Join(root, "a")
	_ = s.Write(filepath.Join(src, "1.md"), []byte("1"))
	_ = s.Write(filepath.Join(src, "2.md"), []byte("2"))

	boom := errors.New("boom")
	calls := 0
	err := s.CopyTree(src, filepath.Join(root, "b"), func(string) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if _, err := os.Stat(filepath.Join(root, "b", "2.md")); !os.IsNotExist(err) {
		t.Error("copy should stop after the first failure")
	}
}

func TestRemoveTree(t *testing.T) {
	s := NewFS()
	root := t.TempDir()
	dir := filepath.Join(root, "a")
	_ = s.Write(filepath.Join(dir, "x.md"), []byte("x"))
	_ = s.Write(filepath.Join(dir, "y", "z.md"), []byte("z"))

	var removed []string
	if err := s.RemoveTree(dir, func(rel string) error {
		removed = append(removed, rel)
		return nil
	}); err != nil {
		t.Fatalf("RemoveTree: %v", err)
	}
	if want := []string{"x.md", "y/z.md"}; !reflect.DeepEqual(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory should be gone")
	}
}

func TestListFiles(t *testing.T) {
	s := NewFS()
	root := t.TempDir()
	_ = s.Write(filepath.Join(root, "b.md"), []byte("b"))
	_ = s.Write(filepath.Join(root, "sub", "a.md"), []byte("a"))
	_ = s.Write(filepath.Join(root, "readme.txt"), []byte("not md"))
	_ = s.Write(filepath.Join(root, ".hidden", "h.md"), []byte("h"))
	_ = s.Write(filepath.Join(root, ".dot.md"), []byte("d"))

	got, err := s.ListFiles(root, ".md")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if want := []string{"b.md", "sub/a.md"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListFiles = %v, want %v", got, want)
	}

	all, _ := s.ListFiles(root, "")
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}
