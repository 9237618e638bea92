package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/starford/marknest/internal/apperr"
	"github.com/starford/marknest/internal/parser"
)

// Record is the metadata kept for one note file.
type Record struct {
	ID        string    `json:"id"`
	Owner     string    `json:"user_id"`
	Path      string    `json:"file_path"`
	Title     string    `json:"title"`
	IsPublic  bool      `json:"is_public"`
	Preview   string    `json:"preview"`
	Checksum  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicNote is a public record joined with its owner's display name.
type PublicNote struct {
	Record
	Username string
}

// UpsertParams describes a write that must be reflected in metadata.
type UpsertParams struct {
	Owner    string
	Path     string
	Content  []byte
	Title    string // optional explicit title
	Checksum string
}

const recordColumns = `id, user_id, file_path, title, is_public, preview, checksum, created_at, updated_at`

// Upsert creates the record for (owner, path) or refreshes its title,
// preview and updated_at. New records start private.
func (db *DB) Upsert(ctx context.Context, p UpsertParams) (*Record, error) {
	doc := parser.Parse(p.Content)
	title := resolveTitle(p.Title, p.Path, doc)
	preview := db.Preview(doc.Body)
	now := time.Now().UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (id, user_id, file_path, title, is_public, preview, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT(user_id, file_path) DO UPDATE SET
			title      = excluded.title,
			preview    = excluded.preview,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, uuid.NewString(), p.Owner, p.Path, title, preview, p.Checksum, now, now)
	if err != nil {
		return nil, fmt.Errorf("store: upsert %s: %w", p.Path, err)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE user_id = ? AND file_path = ?`, p.Owner, p.Path))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return rec, nil
}

// Remove deletes the record for (owner, path). Missing records are not an error.
func (db *DB) Remove(ctx context.Context, owner, logical string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM files WHERE user_id = ? AND file_path = ?`, owner, logical); err != nil {
		return fmt.Errorf("store: remove %s: %w", logical, err)
	}
	return nil
}

// RemoveUnder deletes every record whose path equals prefix or lies below
// it on a segment boundary ("a" matches "a/x.md" but not "ab.md").
func (db *DB) RemoveUnder(ctx context.Context, owner, prefix string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM files
		WHERE user_id = ? AND (file_path = ? OR substr(file_path, 1, ?) = ?)
	`, owner, prefix, utf8.RuneCountInString(prefix)+1, prefix+"/")
	if err != nil {
		return 0, fmt.Errorf("store: remove under %s: %w", prefix, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SetVisibility flips is_public on the record for (owner, path).
func (db *DB) SetVisibility(ctx context.Context, owner, logical string, public bool) (*Record, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE files SET is_public = ?, updated_at = ? WHERE user_id = ? AND file_path = ?`,
		public, time.Now().UTC(), owner, logical)
	if err != nil {
		return nil, fmt.Errorf("store: set visibility: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("store: no record for %s: %w", logical, apperr.ErrNotFound)
	}
	return db.GetByPath(ctx, owner, logical)
}

// Get returns the record with the given id.
func (db *DB) Get(ctx context.Context, id string) (*Record, error) {
	return scanRecord(db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE id = ?`, id))
}

// GetByPath returns the record for (owner, path).
func (db *DB) GetByPath(ctx context.Context, owner, logical string) (*Record, error) {
	return scanRecord(db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE user_id = ? AND file_path = ?`, owner, logical))
}

// ListByOwner returns every record owned by owner, ordered by path.
func (db *DB) ListByOwner(ctx context.Context, owner string) ([]Record, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE user_id = ? ORDER BY file_path`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: list by owner: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ByPath indexes records by logical path.
func ByPath(recs []Record) map[string]Record {
	m := make(map[string]Record, len(recs))
	for _, r := range recs {
		m[r.Path] = r
	}
	return m
}

// ListPublic returns public records across all owners, newest first.
func (db *DB) ListPublic(ctx context.Context, limit, offset int) ([]PublicNote, error) {
	return db.queryPublic(ctx, `
		SELECT f.id, f.user_id, f.file_path, f.title, f.is_public, f.preview, f.checksum, f.created_at, f.updated_at, u.username
		FROM files f JOIN users u ON u.id = f.user_id
		WHERE f.is_public = 1
		ORDER BY f.created_at DESC, f.rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

// ListPublicByOwner returns owner's public records, newest first.
func (db *DB) ListPublicByOwner(ctx context.Context, owner string, limit, offset int) ([]PublicNote, error) {
	return db.queryPublic(ctx, `
		SELECT f.id, f.user_id, f.file_path, f.title, f.is_public, f.preview, f.checksum, f.created_at, f.updated_at, u.username
		FROM files f JOIN users u ON u.id = f.user_id
		WHERE f.is_public = 1 AND f.user_id = ?
		ORDER BY f.created_at DESC, f.rowid DESC
		LIMIT ? OFFSET ?
	`, owner, limit, offset)
}

// GetPublic returns the public record with the given id.
func (db *DB) GetPublic(ctx context.Context, id string) (*PublicNote, error) {
	notes, err := db.queryPublic(ctx, `
		SELECT f.id, f.user_id, f.file_path, f.title, f.is_public, f.preview, f.checksum, f.created_at, f.updated_at, u.username
		FROM files f JOIN users u ON u.id = f.user_id
		WHERE f.is_public = 1 AND f.id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("store: public note %s: %w", id, apperr.ErrNotFound)
	}
	return &notes[0], nil
}

func (db *DB) queryPublic(ctx context.Context, query string, args ...any) ([]PublicNote, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list public: %w", err)
	}
	defer rows.Close()

	out := []PublicNote{}
	for rows.Next() {
		var n PublicNote
		if err := rows.Scan(&n.ID, &n.Owner, &n.Path, &n.Title, &n.IsPublic, &n.Preview,
			&n.Checksum, &n.CreatedAt, &n.UpdatedAt, &n.Username); err != nil {
			return nil, fmt.Errorf("store: scan public: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Checksums returns path → checksum for every record owned by owner.
func (db *DB) Checksums(ctx context.Context, owner string) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT file_path, checksum FROM files WHERE user_id = ?`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: checksums: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var p, sum string
		if err := rows.Scan(&p, &sum); err != nil {
			return nil, fmt.Errorf("store: scan checksum: %w", err)
		}
		m[p] = sum
	}
	return m, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Owner, &r.Path, &r.Title, &r.IsPublic, &r.Preview,
		&r.Checksum, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: record: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan record: %w", err)
	}
	return &r, nil
}
