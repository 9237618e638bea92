package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/marknest/internal/apperr"
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

const userColumns = `id, username, email, password_hash, is_active, created_at`

// CreateUser inserts u. A taken username or email yields ErrConflict.
func (db *DB) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsActive, u.CreatedAt)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && (sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("store: username or email already registered: %w", apperr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// UserByID returns the user with the given id.
func (db *DB) UserByID(ctx context.Context, id string) (*User, error) {
	return db.queryUser(ctx, `WHERE id = ?`, id)
}

// UserByEmail returns the user registered with email.
func (db *DB) UserByEmail(ctx context.Context, email string) (*User, error) {
	return db.queryUser(ctx, `WHERE email = ?`, email)
}

// UserByUsername returns the user with the given username.
func (db *DB) UserByUsername(ctx context.Context, username string) (*User, error) {
	return db.queryUser(ctx, `WHERE username = ?`, username)
}

func (db *DB) queryUser(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: user: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: query user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes the user; their file records go with them.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: user %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// UserIDs returns the ids of all registered users.
func (db *DB) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
