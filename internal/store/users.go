package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btouchard/taskboard/internal/domain"
)

const userColumns = "id, username, email, password, role, created_at"

// CreateUser inserts u and sets its ID. A taken username or email yields
// domain.ErrConflict.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *domain.User) error {
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, email, password, role, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, domain.ErrConflict)
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	u.ID = domain.UserID(id)
	return nil
}

// GetUser returns the user with the given id.
func (s *SQLiteStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", int64(id))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", int64(id))
	}
	return u, err
}

// GetUserByUsername returns the user with the given username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	return u, err
}

// GetUsers returns the users matching ids. Unknown ids are skipped.
func (s *SQLiteStore) GetUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, int64(id))
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders(len(ids))+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("getting users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectUsers(rows)
}

// ListUsers returns users matching the filter, oldest first.
func (s *SQLiteStore) ListUsers(ctx context.Context, f UserFilter) ([]domain.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE 1=1"
	var args []any

	if f.Username != "" {
		query += " AND username = ?"
		args = append(args, f.Username)
	}
	if f.Role != "" {
		query += " AND role = ?"
		args = append(args, string(f.Role))
	}

	query += " ORDER BY id"

	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectUsers(rows)
}

// UserIDs returns the id of every user.
func (s *SQLiteStore) UserIDs(ctx context.Context) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing user ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []domain.UserID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, domain.UserID(id))
	}
	return ids, rows.Err()
}

// CountUsersWithRole returns how many users hold role.
func (s *SQLiteStore) CountUsersWithRole(ctx context.Context, role domain.Role) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role = ?", string(role)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// UpdateUser writes every mutable field of u.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u *domain.User) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET username = ?, email = ?, password = ?, role = ? WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), int64(u.ID))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, domain.ErrConflict)
		}
		return fmt.Errorf("updating user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user", int64(u.ID))
	}
	return nil
}

// DeleteUser removes the user. Their executor associations are removed and
// the tasks they created lose their creator.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id domain.UserID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user", int64(id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var id int64
	var role, createdAt string

	if err := row.Scan(&id, &u.Username, &u.Email, &u.PasswordHash, &role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.ID = domain.UserID(id)
	u.Role = domain.Role(role)
	if r, err := domain.ParseRole(role); err == nil {
		u.Role = r
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
