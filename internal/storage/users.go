package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finance-tracker/internal/models"

	"github.com/sirupsen/logrus"
)

const userColumns = "id, username, password_hash, email, created_at"

// UserRepository stores user accounts.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a UserRepository backed by db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Save inserts u and sets its ID. A zero CreatedAt is set to now.
func (r *UserRepository) Save(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.CreatedAt = normalizeTime(u.CreatedAt)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, email, created_at) VALUES (?, ?, ?, ?)",
		u.Username, u.PasswordHash, nullString(u.Email), formatTime(u.CreatedAt),
	)
	if err != nil {
		return fail("save user", err, logrus.Fields{"username": u.Username})
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fail("save user", err, logrus.Fields{"username": u.Username})
	}
	u.ID = id
	return nil
}

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.conn.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fail("find user", err, logrus.Fields{"user_id": id})
	}
	return u, nil
}

// FindByUsername retrieves a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.conn.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fail("find user by username", err, logrus.Fields{"username": username})
	}
	return u, nil
}

// FindAll lists every user, newest first.
func (r *UserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.conn.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fail("list users", err, nil)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fail("list users", err, nil)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list users", err, nil)
	}
	return users, nil
}

// ExistsByUsername reports whether username is taken.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", username,
	).Scan(&exists)
	if err != nil {
		return false, fail("check username", err, logrus.Fields{"username": username})
	}
	return exists, nil
}

// Count returns the number of users in the database.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fail("count users", err, nil)
	}
	return count, nil
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u         models.User
		email     sql.NullString
		createdAt string
	)
	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &email, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("user %d created_at: %w", u.ID, err)
	}
	u.Email = email.String
	u.CreatedAt = t
	return &u, nil
}
