package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/codelits/invoice-manager/internal/sqlitedb"
)

// SQLiteUsers is a UserRepository over the users table.
type SQLiteUsers struct {
	pool *sqlitedb.Pool
}

// NewSQLiteUsers creates a repository on pool.
func NewSQLiteUsers(pool *sqlitedb.Pool) *SQLiteUsers {
	return &SQLiteUsers{pool: pool}
}

func (s *SQLiteUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var user *User
	err = sqlitex.Execute(conn,
		`SELECT uid, email, password_hash, created_at FROM users WHERE email = ?`,
		&sqlitex.ExecOptions{
			Args: []any{NormalizeEmail(email)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user = &User{
					UID:          stmt.ColumnText(0),
					Email:        stmt.ColumnText(1),
					PasswordHash: stmt.ColumnText(2),
					CreatedAt:    time.Unix(0, stmt.ColumnInt64(3)).UTC(),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("users: find: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *SQLiteUsers) Create(ctx context.Context, user User) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO users (uid, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{user.UID, NormalizeEmail(user.Email), user.PasswordHash, user.CreatedAt.UnixNano()},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique || strings.Contains(err.Error(), "UNIQUE") {
			return ErrEmailInUse
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}
