package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finance-tracker/internal/models"

	"github.com/sirupsen/logrus"
)

const categoryColumns = "id, name, color, type, user_id"

// CategoryRepository stores categories.
type CategoryRepository struct {
	db *DB
}

// NewCategoryRepository creates a CategoryRepository backed by db.
func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Save inserts c and sets its ID.
func (r *CategoryRepository) Save(ctx context.Context, c *models.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx,
		"INSERT INTO categories (name, color, type, user_id) VALUES (?, ?, ?, ?)",
		c.Name, c.Color, string(c.Type), c.UserID,
	)
	if err != nil {
		return fail("save category", err, logrus.Fields{"user_id": c.UserID, "name": c.Name})
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fail("save category", err, logrus.Fields{"user_id": c.UserID, "name": c.Name})
	}
	c.ID = id
	return nil
}

// Update replaces the stored row with c, matched by ID.
func (r *CategoryRepository) Update(ctx context.Context, c *models.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx,
		"UPDATE categories SET name = ?, color = ?, type = ?, user_id = ? WHERE id = ?",
		c.Name, c.Color, string(c.Type), c.UserID, c.ID,
	)
	if err != nil {
		return fail("update category", err, logrus.Fields{"category_id": c.ID})
	}
	return requireAffected(result, "category", c.ID)
}

// Delete removes the category with id. Transactions that referenced it keep
// existing with no category. Deleting a missing id is not an error.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.conn.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id); err != nil {
		return fail("delete category", err, logrus.Fields{"category_id": id})
	}
	return nil
}

// FindByID retrieves a category by ID.
func (r *CategoryRepository) FindByID(ctx context.Context, id int64) (*models.Category, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.conn.QueryRowContext(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fail("find category", err, logrus.Fields{"category_id": id})
	}
	return c, nil
}

// FindAll lists every category.
func (r *CategoryRepository) FindAll(ctx context.Context) ([]models.Category, error) {
	return r.list(ctx, "SELECT "+categoryColumns+" FROM categories ORDER BY id")
}

// FindByUserID lists the categories owned by userID.
func (r *CategoryRepository) FindByUserID(ctx context.Context, userID int64) ([]models.Category, error) {
	return r.list(ctx, "SELECT "+categoryColumns+" FROM categories WHERE user_id = ? ORDER BY id", userID)
}

func (r *CategoryRepository) list(ctx context.Context, query string, args ...any) ([]models.Category, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail("list categories", err, nil)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fail("list categories", err, nil)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list categories", err, nil)
	}
	return categories, nil
}

func scanCategory(s scanner) (*models.Category, error) {
	var (
		c   models.Category
		typ string
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Color, &typ, &c.UserID); err != nil {
		return nil, err
	}
	c.Type = models.TransactionType(typ)
	return &c, nil
}

func requireAffected(result sql.Result, entity string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return nil
}
