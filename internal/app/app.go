// Package app wires the process-scoped components together.
package app

import (
	"context"
	"fmt"

	"finance-tracker/internal/auth"
	"finance-tracker/internal/config"
	"finance-tracker/internal/finance"
	"finance-tracker/internal/session"
	"finance-tracker/internal/storage"
)

// App owns the database and every component built on it.
type App struct {
	DB           *storage.DB
	Session      *session.Session
	Users        *storage.UserRepository
	Categories   *storage.CategoryRepository
	Transactions *storage.TransactionRepository
	Auth         *auth.Service
	Data         *finance.Service
}

// New opens the database described by cfg and builds the services.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := storage.Open(ctx, Options(cfg.DB))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{
		DB:           db,
		Session:      session.New(),
		Users:        storage.NewUserRepository(db),
		Categories:   storage.NewCategoryRepository(db),
		Transactions: storage.NewTransactionRepository(db),
	}
	a.Data = finance.NewService(a.Session, a.Categories, a.Transactions)
	a.Auth = auth.NewService(a.Users, a.Session, a.Data, cfg.BcryptCost)
	return a, nil
}

// Options maps database settings to storage options.
func Options(c config.Database) storage.Options {
	return storage.Options{
		Path:            c.Path,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		ConnMaxLifetime: c.ConnMaxLifetime,
		AcquireTimeout:  c.AcquireTimeout,
	}
}

// Close logs out and closes the database.
func (a *App) Close() error {
	a.Auth.Logout()
	return a.DB.Close()
}
