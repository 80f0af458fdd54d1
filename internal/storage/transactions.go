package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finance-tracker/internal/models"

	"github.com/sirupsen/logrus"
)

const transactionColumns = "id, description, amount, date, category_id, type, user_id"

// TransactionRepository stores transactions.
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a TransactionRepository backed by db.
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Save inserts t and sets its ID.
func (r *TransactionRepository) Save(ctx context.Context, t *models.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.Date = normalizeTime(t.Date)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx,
		"INSERT INTO transactions (description, amount, date, category_id, type, user_id) VALUES (?, ?, ?, ?, ?, ?)",
		t.Description, t.Amount, formatTime(t.Date), nullInt64(t.CategoryID), string(t.Type), t.UserID,
	)
	if err != nil {
		return fail("save transaction", err, logrus.Fields{"user_id": t.UserID})
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fail("save transaction", err, logrus.Fields{"user_id": t.UserID})
	}
	t.ID = id
	return nil
}

// Update replaces the stored row with t, matched by ID.
func (r *TransactionRepository) Update(ctx context.Context, t *models.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.Date = normalizeTime(t.Date)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx,
		"UPDATE transactions SET description = ?, amount = ?, date = ?, category_id = ?, type = ?, user_id = ? WHERE id = ?",
		t.Description, t.Amount, formatTime(t.Date), nullInt64(t.CategoryID), string(t.Type), t.UserID, t.ID,
	)
	if err != nil {
		return fail("update transaction", err, logrus.Fields{"transaction_id": t.ID})
	}
	return requireAffected(result, "transaction", t.ID)
}

// Delete removes the transaction with id. Deleting a missing id is not an error.
func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.conn.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
		return fail("delete transaction", err, logrus.Fields{"transaction_id": id})
	}
	return nil
}

// FindByID retrieves a transaction by ID.
func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*models.Transaction, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.conn.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fail("find transaction", err, logrus.Fields{"transaction_id": id})
	}
	return t, nil
}

// FindAll lists every transaction ordered by date descending.
func (r *TransactionRepository) FindAll(ctx context.Context) ([]models.Transaction, error) {
	return r.list(ctx, "SELECT "+transactionColumns+" FROM transactions ORDER BY date DESC, id DESC")
}

// FindByUserID lists the transactions owned by userID ordered by date descending.
func (r *TransactionRepository) FindByUserID(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return r.list(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = ? ORDER BY date DESC, id DESC",
		userID,
	)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail("list transactions", err, nil)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fail("list transactions", err, nil)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list transactions", err, nil)
	}
	return transactions, nil
}

func scanTransaction(s scanner) (*models.Transaction, error) {
	var (
		t          models.Transaction
		date       string
		categoryID sql.NullInt64
		typ        string
	)
	if err := s.Scan(&t.ID, &t.Description, &t.Amount, &date, &categoryID, &typ, &t.UserID); err != nil {
		return nil, err
	}
	parsed, err := parseTime(date)
	if err != nil {
		return nil, fmt.Errorf("transaction %d date: %w", t.ID, err)
	}
	t.Date = parsed
	t.Type = models.TransactionType(typ)
	if categoryID.Valid {
		id := categoryID.Int64
		t.CategoryID = &id
	}
	return &t, nil
}
