// Package sandbox maps logical note paths onto per-user directories and
// rejects anything that would resolve outside the owning user's root.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/marknest/internal/apperr"
)

// UserDirPrefix is prepended to the user id to form the user root directory name.
const UserDirPrefix = "user_"

var userIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Sandbox resolves (user, logical path) pairs below a notes base directory.
type Sandbox struct {
	base string // canonical absolute path
}

// New creates a Sandbox rooted at base, creating the directory if needed.
func New(base string) (*Sandbox, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve base: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create base: %v: %w", err, apperr.ErrStorageUnavailable)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: canonicalize base: %w", err)
	}
	return &Sandbox{base: canon}, nil
}

// Base returns the canonical notes base directory.
func (s *Sandbox) Base() string {
	return s.base
}

// ValidateUserID checks that id is usable as a directory name component.
func ValidateUserID(id string) error {
	if err := validation.Validate(id, validation.Required, validation.Match(userIDRe)); err != nil {
		return fmt.Errorf("sandbox: user id %q: %v: %w", id, err, apperr.ErrInvalidArgument)
	}
	return nil
}

// UserID extracts the user id from a user root directory name, e.g. "user_42" → "42".
func UserID(dirName string) (string, bool) {
	id, ok := strings.CutPrefix(dirName, UserDirPrefix)
	if !ok || ValidateUserID(id) != nil {
		return "", false
	}
	return id, true
}

// UserRoot returns the canonical root directory for userID, creating it on
// first access.
func (s *Sandbox) UserRoot(userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	root := filepath.Join(s.base, UserDirPrefix+userID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("sandbox: create user root: %v: %w", err, apperr.ErrStorageUnavailable)
	}
	canon, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("sandbox: canonicalize user root: %v: %w", err, apperr.ErrStorageUnavailable)
	}
	if !within(s.base, canon) {
		return "", fmt.Errorf("sandbox: user root escapes base: %w", apperr.ErrInvalidPath)
	}
	return canon, nil
}

// Normalize validates a logical path and returns its cleaned, slash-separated
// form. It performs no I/O.
func Normalize(logical string) (string, error) {
	p := strings.TrimSpace(logical)
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return "", fmt.Errorf("sandbox: absolute path %q: %w", logical, apperr.ErrInvalidPath)
	}
	p = strings.TrimSpace(strings.Trim(p, "/"))
	if p == "" {
		return "", fmt.Errorf("sandbox: path cannot be empty: %w", apperr.ErrInvalidPath)
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("sandbox: path contains NUL: %w", apperr.ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("sandbox: directory traversal not allowed in %q: %w", logical, apperr.ErrInvalidPath)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("sandbox: path %q resolves to the root: %w", logical, apperr.ErrInvalidPath)
	}
	return cleaned, nil
}

// Resolve returns the canonical absolute location of logical inside userID's
// root. The containment check runs on the symlink-resolved path.
func (s *Sandbox) Resolve(userID, logical string) (string, error) {
	rel, err := Normalize(logical)
	if err != nil {
		return "", err
	}
	root, err := s.UserRoot(userID)
	if err != nil {
		return "", err
	}
	candidate, err := canonicalize(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	if !within(root, candidate) {
		return "", fmt.Errorf("sandbox: %q resolves outside user directory: %w", logical, apperr.ErrInvalidPath)
	}
	return candidate, nil
}

// ResolveEntry is Resolve for operations that replace or remove the entry
// itself. A symbolic link as the final component is refused, since acting on
// its target would leave the link and the target's metadata out of step.
func (s *Sandbox) ResolveEntry(userID, logical string) (string, error) {
	abs, err := s.Resolve(userID, logical)
	if err != nil {
		return "", err
	}
	rel, _ := Normalize(logical)
	root, err := s.UserRoot(userID)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
	if err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return "", fmt.Errorf("sandbox: %q is a symbolic link: %w", logical, apperr.ErrInvalidArgument)
	}
	return abs, nil
}

// Logical converts an absolute path under root back to a logical path.
func Logical(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || !within(root, abs) {
		return "", fmt.Errorf("sandbox: %s is not under %s: %w", abs, root, apperr.ErrInvalidPath)
	}
	return filepath.ToSlash(rel), nil
}

// canonicalize resolves symlinks along the longest existing prefix of p and
// re-appends the components that do not exist yet.
func canonicalize(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		// ENOTDIR means a prefix is a regular file; the rest cannot exist.
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", fmt.Errorf("sandbox: canonicalize: %v: %w", err, apperr.ErrStorageUnavailable)
		}
		// A dangling symlink exists under Lstat but not under Stat.
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", fmt.Errorf("sandbox: dangling symlink %s: %w", filepath.Base(cur), apperr.ErrInvalidPath)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}

// within reports whether p equals root or is a descendant of it.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
