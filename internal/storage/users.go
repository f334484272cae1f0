package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"filesmanager/internal/common"
	"filesmanager/internal/models"
)

// UserStore persists user records.
type UserStore struct {
	db     *sql.DB
	driver string
}

func NewUserStore(db *sql.DB, driver string) *UserStore {
	return &UserStore{db: db, driver: driver}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		Rebind(s.driver, `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", user.Email, common.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByEmail returns common.ErrNotFound when no user has the email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `SELECT id, email, password_hash FROM users WHERE email = ?`, email)
}

// FindByID returns common.ErrNotFound when the id is unknown.
func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOne(ctx, `SELECT id, email, password_hash FROM users WHERE id = ?`, id)
}

func (s *UserStore) findOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, Rebind(s.driver, query), arg).
		Scan(&user.ID, &user.Email, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
