// Package finance keeps the logged-in user's categories and transactions in
// memory and routes every change through the repositories.
//
// A Service is meant to be driven from a single goroutine; it does no locking.
package finance

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"finance-tracker/internal/models"
	"finance-tracker/internal/session"
	"finance-tracker/internal/storage"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotLoggedIn is returned by operations that need a current user.
	ErrNotLoggedIn = errors.New("no user is logged in")
	// ErrNotOwner is returned when a cached item belongs to another user.
	ErrNotOwner = errors.New("belongs to another user")
)

// CategoryStore persists categories.
type CategoryStore interface {
	Save(ctx context.Context, c *models.Category) error
	Update(ctx context.Context, c *models.Category) error
	Delete(ctx context.Context, id int64) error
	FindByUserID(ctx context.Context, userID int64) ([]models.Category, error)
}

// TransactionStore persists transactions.
type TransactionStore interface {
	Save(ctx context.Context, t *models.Transaction) error
	Update(ctx context.Context, t *models.Transaction) error
	Delete(ctx context.Context, id int64) error
	FindByUserID(ctx context.Context, userID int64) ([]models.Transaction, error)
}

// Service is the in-memory working set of the current user.
type Service struct {
	session      *session.Session
	categories   CategoryStore
	transactions TransactionStore

	categoryList    []models.Category
	categoryByID    map[int64]models.Category
	transactionList []models.Transaction

	listeners    []listener
	nextListener int
}

// NewService creates a Service with an empty working set.
func NewService(sess *session.Session, categories CategoryStore, transactions TransactionStore) *Service {
	return &Service{
		session:      sess,
		categories:   categories,
		transactions: transactions,
		categoryByID: make(map[int64]models.Category),
	}
}

func (s *Service) currentUserID() (int64, error) {
	id, ok := s.session.CurrentUserID()
	if !ok {
		return 0, ErrNotLoggedIn
	}
	return id, nil
}

// Load replaces the working set with the current user's data. A user with no
// categories gets the default set first.
func (s *Service) Load(ctx context.Context) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	log := logrus.WithField("user_id", userID)

	categories, err := s.categories.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	if len(categories) == 0 {
		if err := s.seedDefaults(ctx, userID); err != nil {
			return err
		}
		log.Info("seeded default categories")
		if categories, err = s.categories.FindByUserID(ctx, userID); err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
	}

	transactions, err := s.transactions.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	s.categoryList = categories
	s.rebuildCache()
	s.transactionList = transactions
	for i := range s.transactionList {
		s.resolve(&s.transactionList[i])
	}
	sortTransactions(s.transactionList)

	log.WithFields(logrus.Fields{
		"categories":   len(s.categoryList),
		"transactions": len(s.transactionList),
	}).Debug("working set loaded")
	s.notify(Change{Kind: Reloaded})
	return nil
}

// seedDefaults saves the default categories for userID. A failure removes the
// ones already saved so the next Load seeds the full set again.
func (s *Service) seedDefaults(ctx context.Context, userID int64) error {
	var saved []int64
	for _, c := range DefaultCategories() {
		c.UserID = userID
		if err := s.categories.Save(ctx, &c); err != nil {
			s.unseed(ctx, userID, saved)
			return fmt.Errorf("seed category %q: %w", c.Name, err)
		}
		saved = append(saved, c.ID)
	}
	return nil
}

func (s *Service) unseed(ctx context.Context, userID int64, ids []int64) {
	for _, id := range ids {
		if err := s.categories.Delete(ctx, id); err != nil {
			logrus.WithFields(logrus.Fields{"user_id": userID, "category_id": id}).
				WithError(err).Error("could not remove partially seeded category")
		}
	}
}

// Clear empties the working set.
func (s *Service) Clear() {
	s.categoryList = nil
	s.categoryByID = make(map[int64]models.Category)
	s.transactionList = nil
	s.notify(Change{Kind: Cleared})
}

// Transactions returns the loaded transactions, newest first.
func (s *Service) Transactions() []models.Transaction {
	out := make([]models.Transaction, len(s.transactionList))
	copy(out, s.transactionList)
	return out
}

// Categories returns the loaded categories.
func (s *Service) Categories() []models.Category {
	out := make([]models.Category, len(s.categoryList))
	copy(out, s.categoryList)
	return out
}

// CategoriesByType returns the loaded categories of type t.
func (s *Service) CategoriesByType(t models.TransactionType) []models.Category {
	var out []models.Category
	for _, c := range s.categoryList {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// CategoryByID looks a category up in the cache.
func (s *Service) CategoryByID(id int64) (models.Category, bool) {
	c, ok := s.categoryByID[id]
	return c, ok
}

// CategoryByName finds a loaded category of type t by name.
func (s *Service) CategoryByName(name string, t models.TransactionType) (models.Category, bool) {
	for _, c := range s.categoryList {
		if c.Name == name && c.Type == t {
			return c, true
		}
	}
	return models.Category{}, false
}

// AddTransaction stores t for the current user and appends it to the working
// set. The amount's sign is set from t.Type.
func (s *Service) AddTransaction(ctx context.Context, t *models.Transaction) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	t.UserID = userID
	if err := s.prepare(t); err != nil {
		return err
	}
	if err := s.transactions.Save(ctx, t); err != nil {
		return err
	}

	s.transactionList = append(s.transactionList, *t)
	sortTransactions(s.transactionList)
	s.notify(Change{Kind: Added, Entity: EntityTransaction, ID: t.ID})
	return nil
}

// UpdateTransaction stores the new state of a loaded transaction.
func (s *Service) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	i := s.transactionIndex(t.ID)
	if i < 0 {
		return fmt.Errorf("transaction %d: %w", t.ID, storage.ErrNotFound)
	}
	if err := checkOwner("transaction", t.ID, s.transactionList[i].UserID, userID); err != nil {
		return err
	}
	t.UserID = s.transactionList[i].UserID
	if err := s.prepare(t); err != nil {
		return err
	}
	if err := s.transactions.Update(ctx, t); err != nil {
		return err
	}

	s.transactionList[i] = *t
	sortTransactions(s.transactionList)
	s.notify(Change{Kind: Updated, Entity: EntityTransaction, ID: t.ID})
	return nil
}

// RemoveTransaction deletes a loaded transaction.
func (s *Service) RemoveTransaction(ctx context.Context, id int64) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	i := s.transactionIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %d: %w", id, storage.ErrNotFound)
	}
	if err := checkOwner("transaction", id, s.transactionList[i].UserID, userID); err != nil {
		return err
	}
	if err := s.transactions.Delete(ctx, id); err != nil {
		return err
	}

	s.transactionList = append(s.transactionList[:i], s.transactionList[i+1:]...)
	s.notify(Change{Kind: Removed, Entity: EntityTransaction, ID: id})
	return nil
}

// AddCategory stores c for the current user and adds it to the working set.
func (s *Service) AddCategory(ctx context.Context, c *models.Category) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	c.UserID = userID
	c.Color = models.NormalizeColor(c.Color)
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.categories.Save(ctx, c); err != nil {
		return err
	}

	s.categoryList = append(s.categoryList, *c)
	s.categoryByID[c.ID] = *c
	s.notify(Change{Kind: Added, Entity: EntityCategory, ID: c.ID})
	return nil
}

// UpdateCategory stores a loaded category's new name and colour. The type of
// a category cannot change.
func (s *Service) UpdateCategory(ctx context.Context, c *models.Category) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	existing, ok := s.categoryByID[c.ID]
	if !ok {
		return fmt.Errorf("category %d: %w", c.ID, storage.ErrNotFound)
	}
	if err := checkOwner("category", c.ID, existing.UserID, userID); err != nil {
		return err
	}
	if existing.Type != c.Type {
		return models.NewValidationError("category type cannot change from %s to %s", existing.Type, c.Type)
	}
	c.UserID = existing.UserID
	c.Color = models.NormalizeColor(c.Color)
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.categories.Update(ctx, c); err != nil {
		return err
	}

	for i := range s.categoryList {
		if s.categoryList[i].ID == c.ID {
			s.categoryList[i] = *c
		}
	}
	s.categoryByID[c.ID] = *c
	for i := range s.transactionList {
		if id := s.transactionList[i].CategoryID; id != nil && *id == c.ID {
			s.resolve(&s.transactionList[i])
		}
	}
	s.notify(Change{Kind: Updated, Entity: EntityCategory, ID: c.ID})
	return nil
}

// RemoveCategory deletes a loaded category. Transactions that used it stay,
// uncategorized.
func (s *Service) RemoveCategory(ctx context.Context, id int64) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	existing, ok := s.categoryByID[id]
	if !ok {
		return fmt.Errorf("category %d: %w", id, storage.ErrNotFound)
	}
	if err := checkOwner("category", id, existing.UserID, userID); err != nil {
		return err
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}

	for i := range s.categoryList {
		if s.categoryList[i].ID == id {
			s.categoryList = append(s.categoryList[:i], s.categoryList[i+1:]...)
			break
		}
	}
	delete(s.categoryByID, id)
	for i := range s.transactionList {
		if cid := s.transactionList[i].CategoryID; cid != nil && *cid == id {
			s.transactionList[i].SetCategory(nil)
		}
	}
	s.notify(Change{Kind: Removed, Entity: EntityCategory, ID: id})
	return nil
}

// prepare normalizes the sign of t, checks its category against the cache and
// validates it.
func (s *Service) prepare(t *models.Transaction) error {
	if t.Type.Valid() {
		t.Amount = models.SignedAmount(t.Type, t.Amount)
	}
	if t.CategoryID != nil {
		c, ok := s.categoryByID[*t.CategoryID]
		if !ok {
			return models.NewValidationError("unknown category %d", *t.CategoryID)
		}
		if err := checkOwner("category", c.ID, c.UserID, t.UserID); err != nil {
			return err
		}
		if c.Type != t.Type {
			return models.NewValidationError("category %q is for %s, not %s", c.Name, c.Type, t.Type)
		}
	}
	s.resolve(t)
	return t.Validate()
}

// resolve points t.Category at the cached category, or nil if it is gone.
func (s *Service) resolve(t *models.Transaction) {
	t.Category = nil
	if t.CategoryID == nil {
		return
	}
	if c, ok := s.categoryByID[*t.CategoryID]; ok {
		t.Category = &c
	}
}

func (s *Service) rebuildCache() {
	s.categoryByID = make(map[int64]models.Category, len(s.categoryList))
	for _, c := range s.categoryList {
		s.categoryByID[c.ID] = c
	}
}

// checkOwner rejects changes to items the current user does not own. Owners
// never change.
func checkOwner(entity string, id, owner, current int64) error {
	if owner != current {
		logrus.WithFields(logrus.Fields{"user_id": current, "owner_id": owner, entity + "_id": id}).
			Warn("refused change to another user's " + entity)
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotOwner)
	}
	return nil
}

func (s *Service) transactionIndex(id int64) int {
	for i := range s.transactionList {
		if s.transactionList[i].ID == id {
			return i
		}
	}
	return -1
}

func sortTransactions(ts []models.Transaction) {
	sort.SliceStable(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date) {
			return ts[i].Date.After(ts[j].Date)
		}
		return ts[i].ID > ts[j].ID
	})
}
