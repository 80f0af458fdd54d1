package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"finance-tracker/internal/config"
	"finance-tracker/internal/finance"
	"finance-tracker/internal/models"
	"finance-tracker/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "app.db"))
	cfg, err := config.Parse()
	require.NoError(t, err)
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func TestOptions(t *testing.T) {
	opts := Options(config.Database{
		Path:            "x.db",
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxIdleTime: time.Minute,
		ConnMaxLifetime: time.Hour,
		AcquireTimeout:  time.Second,
	})
	assert.Equal(t, "x.db", opts.Path)
	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.Equal(t, 1, opts.MaxIdleConns)
	assert.Equal(t, time.Minute, opts.ConnMaxIdleTime)
	assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
	assert.Equal(t, time.Second, opts.AcquireTimeout)
}

func TestApp_RegisterLoginAndTrack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Auth.Register(ctx, "grace", "password", "")
	require.NoError(t, err)
	_, err = a.Auth.Login(ctx, "grace", "password")
	require.NoError(t, err)
	require.NoError(t, a.Data.Load(ctx))

	groceries, ok := a.Data.CategoryByName("Groceries", models.Expense)
	require.True(t, ok)
	require.NoError(t, a.Data.AddTransaction(ctx, &models.Transaction{
		Description: "Bread", Amount: 3, Date: time.Now(), CategoryID: &groceries.ID, Type: models.Expense,
	}))

	a.Auth.Logout()
	assert.Empty(t, a.Data.Transactions(), "logout clears the working set")
	assert.False(t, a.Session.IsLoggedIn())

	_, err = a.Auth.Login(ctx, "grace", "password")
	require.NoError(t, err)
	require.NoError(t, a.Data.Load(ctx))
	assert.Len(t, a.Data.Transactions(), 1)
	assert.Len(t, a.Data.Categories(), len(finance.DefaultCategories()))
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestApp_OpenFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.Path = t.TempDir()

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestApp_SwitchingUsersKeepsOwnership(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	alice, err := a.Auth.Register(ctx, "alice", "password", "")
	require.NoError(t, err)
	bob, err := a.Auth.Register(ctx, "bobby", "password", "")
	require.NoError(t, err)

	_, err = a.Auth.Login(ctx, "alice", "password")
	require.NoError(t, err)
	require.NoError(t, a.Data.Load(ctx))
	tx := &models.Transaction{Description: "Rent", Amount: 900, Date: time.Now(), Type: models.Expense}
	require.NoError(t, a.Data.AddTransaction(ctx, tx))
	groceries, ok := a.Data.CategoryByName("Groceries", models.Expense)
	require.True(t, ok)

	// Logging in as someone else without logging out first.
	_, err = a.Auth.Login(ctx, "bobby", "password")
	require.NoError(t, err)
	assert.Empty(t, a.Data.Transactions(), "previous user's data is dropped on login")
	assert.Empty(t, a.Data.Categories())

	edited := *tx
	edited.Description = "changed"
	assert.ErrorIs(t, a.Data.UpdateTransaction(ctx, &edited), storage.ErrNotFound)

	stored, err := a.Transactions.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, stored.UserID)
	assert.Equal(t, "Rent", stored.Description)

	// A working set loaded for alice refuses changes made as bob.
	_, err = a.Auth.Login(ctx, "alice", "password")
	require.NoError(t, err)
	require.NoError(t, a.Data.Load(ctx))
	a.Session.SetCurrentUser(bob)

	assert.ErrorIs(t, a.Data.UpdateTransaction(ctx, &edited), finance.ErrNotOwner)
	assert.ErrorIs(t, a.Data.RemoveTransaction(ctx, tx.ID), finance.ErrNotOwner)
	renamed := groceries
	renamed.Name = "Mine now"
	assert.ErrorIs(t, a.Data.UpdateCategory(ctx, &renamed), finance.ErrNotOwner)
	assert.ErrorIs(t, a.Data.RemoveCategory(ctx, groceries.ID), finance.ErrNotOwner)
	assert.ErrorIs(t, a.Data.AddTransaction(ctx, &models.Transaction{
		Description: "Snacks", Amount: 5, Date: time.Now(), CategoryID: &groceries.ID, Type: models.Expense,
	}), finance.ErrNotOwner)

	stored, err = a.Transactions.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, stored.UserID)
	assert.Equal(t, "Rent", stored.Description)

	category, err := a.Categories.FindByID(ctx, groceries.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, category.UserID)
	assert.Equal(t, "Groceries", category.Name)

	bobsTransactions, err := a.Transactions.FindByUserID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobsTransactions)
}
