package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TransactionType is the direction of a money movement.
type TransactionType string

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

// Valid reports whether t is one of the known types.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// ParseTransactionType accepts "income"/"expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// SignedAmount returns amount with the sign that matches t:
// negative for expenses, positive for income.
func SignedAmount(t TransactionType, amount float64) float64 {
	if t == Expense {
		return -math.Abs(amount)
	}
	return math.Abs(amount)
}

// Transaction is a single dated money movement.
//
// Amount carries the direction: it is negative exactly when Type is Expense.
// Category is resolved in memory from CategoryID and is never stored.
type Transaction struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Date        time.Time       `json:"date"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Category    *Category       `json:"-"`
	Type        TransactionType `json:"type"`
	UserID      int64           `json:"user_id"`
}

// Validate checks the type/sign invariant and the required fields.
func (t *Transaction) Validate() error {
	if !t.Type.Valid() {
		return NewValidationError("transaction type must be INCOME or EXPENSE, got %q", t.Type)
	}
	if t.Amount == 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return NewValidationError("transaction amount must be a non-zero number")
	}
	if (t.Amount < 0) != (t.Type == Expense) {
		return NewValidationError("amount %.2f does not match transaction type %s", t.Amount, t.Type)
	}
	if t.Date.IsZero() {
		return NewValidationError("transaction date is required")
	}
	return nil
}

// SetCategory points the transaction at c, or clears the reference when c is nil.
func (t *Transaction) SetCategory(c *Category) {
	t.Category = c
	if c == nil {
		t.CategoryID = nil
		return
	}
	id := c.ID
	t.CategoryID = &id
}
