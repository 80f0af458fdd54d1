package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"finance-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func int64Ptr(v int64) *int64 { return &v }

// DBTestSuite provides a test suite for repository operations
type DBTestSuite struct {
	suite.Suite
	ctx          context.Context
	db           *DB
	users        *UserRepository
	categories   *CategoryRepository
	transactions *TransactionRepository
	user         *models.User
}

// SetupTest runs before each test
func (suite *DBTestSuite) SetupTest() {
	suite.ctx = context.Background()

	db, err := NewDB(filepath.Join(suite.T().TempDir(), "finance.db"))
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.users = NewUserRepository(db)
	suite.categories = NewCategoryRepository(db)
	suite.transactions = NewTransactionRepository(db)

	suite.user = &models.User{Username: "testuser", PasswordHash: "hash"}
	require.NoError(suite.T(), suite.users.Save(suite.ctx, suite.user), "failed to create test user")
}

// TearDownTest runs after each test
func (suite *DBTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *DBTestSuite) newCategory(name string, typ models.TransactionType) *models.Category {
	c := &models.Category{Name: name, Color: "#00FFA3", Type: typ, UserID: suite.user.ID}
	require.NoError(suite.T(), suite.categories.Save(suite.ctx, c), "failed to create category %s", name)
	return c
}

func (suite *DBTestSuite) TestSaveUserAssignsID() {
	assert.NotZero(suite.T(), suite.user.ID)
	assert.False(suite.T(), suite.user.CreatedAt.IsZero())
}

func (suite *DBTestSuite) TestUserRoundTrip() {
	u := &models.User{
		Username:     "alice",
		PasswordHash: "$2a$12$abc",
		Email:        "alice@example.com",
		CreatedAt:    time.Date(2024, 3, 9, 14, 30, 15, 0, time.Local),
	}
	require.NoError(suite.T(), suite.users.Save(suite.ctx, u))

	byID, err := suite.users.FindByID(suite.ctx, u.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), u.Username, byID.Username)
	assert.Equal(suite.T(), u.PasswordHash, byID.PasswordHash)
	assert.Equal(suite.T(), u.Email, byID.Email)
	assert.True(suite.T(), u.CreatedAt.Equal(byID.CreatedAt), "created_at mismatch: %v vs %v", u.CreatedAt, byID.CreatedAt)

	byName, err := suite.users.FindByUsername(suite.ctx, "alice")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), u.ID, byName.ID)
}

func (suite *DBTestSuite) TestUserWithoutEmail() {
	found, err := suite.users.FindByID(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), found.Email)
}

func (suite *DBTestSuite) TestUserNotFound() {
	_, err := suite.users.FindByUsername(suite.ctx, "nobody")
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.users.FindByID(suite.ctx, 9999)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestDuplicateUsername() {
	err := suite.users.Save(suite.ctx, &models.User{Username: "testuser", PasswordHash: "other"})
	require.Error(suite.T(), err)
	assert.NotErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestExistsByUsernameAndCount() {
	exists, err := suite.users.ExistsByUsername(suite.ctx, "testuser")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists)

	exists, err = suite.users.ExistsByUsername(suite.ctx, "ghost")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), exists)

	require.NoError(suite.T(), suite.users.Save(suite.ctx, &models.User{Username: "second", PasswordHash: "x"}))
	count, err := suite.users.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, count)

	all, err := suite.users.FindAll(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), all, 2)
}

func (suite *DBTestSuite) TestCategoryRoundTrip() {
	c := suite.newCategory("Salary", models.Income)
	assert.NotZero(suite.T(), c.ID)

	found, err := suite.categories.FindByID(suite.ctx, c.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), *c, *found)

	list, err := suite.categories.FindByUserID(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), *c, list[0])
}

func (suite *DBTestSuite) TestCategoryValidation() {
	err := suite.categories.Save(suite.ctx, &models.Category{Name: "Bad", Color: "red", Type: models.Income, UserID: suite.user.ID})
	assert.True(suite.T(), models.IsValidationError(err))

	err = suite.categories.Save(suite.ctx, &models.Category{Name: "Orphan", Color: "#FFFFFF", Type: models.Income, UserID: 4242})
	assert.Error(suite.T(), err, "foreign key on user_id should reject unknown users")
}

func (suite *DBTestSuite) TestUpdateCategory() {
	c := suite.newCategory("Food", models.Expense)
	c.Name = "Groceries"
	c.Color = "#FFEB3B"
	require.NoError(suite.T(), suite.categories.Update(suite.ctx, c))

	found, err := suite.categories.FindByID(suite.ctx, c.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Groceries", found.Name)
	assert.Equal(suite.T(), "#FFEB3B", found.Color)

	missing := *c
	missing.ID = 9999
	assert.ErrorIs(suite.T(), suite.categories.Update(suite.ctx, &missing), ErrNotFound)
}

func (suite *DBTestSuite) TestDeleteCategoryIsIdempotent() {
	c := suite.newCategory("Gifts", models.Expense)
	require.NoError(suite.T(), suite.categories.Delete(suite.ctx, c.ID))
	require.NoError(suite.T(), suite.categories.Delete(suite.ctx, c.ID))

	_, err := suite.categories.FindByID(suite.ctx, c.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestCategoriesScopedByUser() {
	other := &models.User{Username: "other", PasswordHash: "x"}
	require.NoError(suite.T(), suite.users.Save(suite.ctx, other))
	suite.newCategory("Mine", models.Income)
	require.NoError(suite.T(), suite.categories.Save(suite.ctx, &models.Category{Name: "Theirs", Color: "#000000", Type: models.Income, UserID: other.ID}))

	mine, err := suite.categories.FindByUserID(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), mine, 1)
	assert.Equal(suite.T(), "Mine", mine[0].Name)

	all, err := suite.categories.FindAll(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), all, 2)
}

func (suite *DBTestSuite) TestTransactionRoundTrip() {
	c := suite.newCategory("Food", models.Expense)
	t := &models.Transaction{
		Description: "Lunch",
		Amount:      -10.50,
		Date:        time.Date(2024, 5, 1, 12, 15, 0, 0, time.Local),
		CategoryID:  int64Ptr(c.ID),
		Type:        models.Expense,
		UserID:      suite.user.ID,
	}
	require.NoError(suite.T(), suite.transactions.Save(suite.ctx, t))
	assert.NotZero(suite.T(), t.ID)

	found, err := suite.transactions.FindByID(suite.ctx, t.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), t.ID, found.ID)
	assert.Equal(suite.T(), "Lunch", found.Description)
	assert.Equal(suite.T(), -10.50, found.Amount)
	assert.True(suite.T(), t.Date.Equal(found.Date), "date mismatch: %v vs %v", t.Date, found.Date)
	require.NotNil(suite.T(), found.CategoryID)
	assert.Equal(suite.T(), c.ID, *found.CategoryID)
	assert.Equal(suite.T(), models.Expense, found.Type)
	assert.Equal(suite.T(), suite.user.ID, found.UserID)
}

func (suite *DBTestSuite) TestTransactionWithoutCategory() {
	t := &models.Transaction{Description: "Gift", Amount: 25, Date: time.Now(), Type: models.Income, UserID: suite.user.ID}
	require.NoError(suite.T(), suite.transactions.Save(suite.ctx, t))

	found, err := suite.transactions.FindByID(suite.ctx, t.ID)
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), found.CategoryID)
}

func (suite *DBTestSuite) TestTransactionSignMustMatchType() {
	t := &models.Transaction{Description: "Wrong", Amount: 10, Date: time.Now(), Type: models.Expense, UserID: suite.user.ID}
	err := suite.transactions.Save(suite.ctx, t)
	assert.True(suite.T(), models.IsValidationError(err))
	assert.Zero(suite.T(), t.ID)
}

func (suite *DBTestSuite) TestListTransactionsNewestFirst() {
	baseTime := time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local)

	expenses := []struct {
		amount      float64
		description string
		offset      time.Duration
	}{
		{-20.00, "Bus", time.Minute},
		{-5.00, "Coffee", 2 * time.Minute},
		{-15.00, "Snack", 3 * time.Minute},
	}

	for _, exp := range expenses {
		err := suite.transactions.Save(suite.ctx, &models.Transaction{
			Description: exp.description,
			Amount:      exp.amount,
			Date:        baseTime.Add(exp.offset),
			Type:        models.Expense,
			UserID:      suite.user.ID,
		})
		require.NoError(suite.T(), err, "failed to create transaction: %s", exp.description)
	}

	result, err := suite.transactions.FindByUserID(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	if assert.Len(suite.T(), result, 3) {
		assert.Equal(suite.T(), "Snack", result[0].Description)
		assert.Equal(suite.T(), "Coffee", result[1].Description)
		assert.Equal(suite.T(), "Bus", result[2].Description)
	}

	all, err := suite.transactions.FindAll(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), all, 3)
}

func (suite *DBTestSuite) TestUpdateTransaction() {
	t := &models.Transaction{Description: "Rent", Amount: -500, Date: time.Now(), Type: models.Expense, UserID: suite.user.ID}
	require.NoError(suite.T(), suite.transactions.Save(suite.ctx, t))

	c := suite.newCategory("Housing", models.Expense)
	t.Amount = -550
	t.CategoryID = int64Ptr(c.ID)
	require.NoError(suite.T(), suite.transactions.Update(suite.ctx, t))

	found, err := suite.transactions.FindByID(suite.ctx, t.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), -550.0, found.Amount)
	require.NotNil(suite.T(), found.CategoryID)
	assert.Equal(suite.T(), c.ID, *found.CategoryID)

	missing := *t
	missing.ID = 9999
	assert.ErrorIs(suite.T(), suite.transactions.Update(suite.ctx, &missing), ErrNotFound)
}

func (suite *DBTestSuite) TestDeleteTransaction() {
	t := &models.Transaction{Description: "Taxi", Amount: -12, Date: time.Now(), Type: models.Expense, UserID: suite.user.ID}
	require.NoError(suite.T(), suite.transactions.Save(suite.ctx, t))

	require.NoError(suite.T(), suite.transactions.Delete(suite.ctx, t.ID))
	_, err := suite.transactions.FindByID(suite.ctx, t.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	assert.NoError(suite.T(), suite.transactions.Delete(suite.ctx, t.ID), "deleting twice is a no-op")
}

func (suite *DBTestSuite) TestDeletingCategoryClearsTransactionReference() {
	c := suite.newCategory("Clothing", models.Expense)
	t := &models.Transaction{Description: "Jacket", Amount: -80, Date: time.Now(), CategoryID: int64Ptr(c.ID), Type: models.Expense, UserID: suite.user.ID}
	require.NoError(suite.T(), suite.transactions.Save(suite.ctx, t))

	require.NoError(suite.T(), suite.categories.Delete(suite.ctx, c.ID))

	found, err := suite.transactions.FindByID(suite.ctx, t.ID)
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), found.CategoryID)
}

func (suite *DBTestSuite) TestHealth() {
	stats := suite.db.Health(suite.ctx)
	assert.Equal(suite.T(), "up", stats["status"])

	require.NoError(suite.T(), suite.db.Close())
	stats = suite.db.Health(suite.ctx)
	assert.Equal(suite.T(), "down", stats["status"])
}

func (suite *DBTestSuite) TestCloseIsIdempotent() {
	assert.NoError(suite.T(), suite.db.Close())
	assert.NoError(suite.T(), suite.db.Close())
}

func (suite *DBTestSuite) TestClosedDBReportsErrorNotNotFound() {
	require.NoError(suite.T(), suite.db.Close())

	_, err := suite.users.FindByID(suite.ctx, suite.user.ID)
	require.Error(suite.T(), err)
	assert.NotErrorIs(suite.T(), err, ErrNotFound)
}

// Test suite runners
func TestDBSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	users := NewUserRepository(db)
	require.NoError(t, users.Save(ctx, &models.User{Username: "mem", PasswordHash: "x"}))

	// A second repository call must see the same in-memory database.
	exists, err := users.ExistsByUsername(ctx, "mem")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpenInvalidPath(t *testing.T) {
	// A directory is not a database file.
	_, err := NewDB(t.TempDir())
	assert.Error(t, err)
}

func TestParseTimeLayouts(t *testing.T) {
	for _, s := range []string{"2024-01-02T03:04:05", "2024-01-02T03:04:05.123", "2024-01-02T03:04", "2024-01-02 03:04:05"} {
		parsed, err := parseTime(s)
		require.NoError(t, err, s)
		assert.Equal(t, 2024, parsed.Year())
		assert.Equal(t, 3, parsed.Hour())
	}

	_, err := parseTime("yesterday")
	assert.Error(t, err)
}
