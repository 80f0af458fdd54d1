package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// PlaceholderUsername owns rows carried over from databases created before
// data was scoped by user.
const PlaceholderUsername = "default_user"

// placeholderPasswordHash is not a valid bcrypt hash, so nobody can log in
// as the placeholder user.
const placeholderPasswordHash = "$2a$12$dummy"

type migration struct {
	version int
	name    string
	up      func(ctx context.Context, tx *sql.Tx) error
}

// migrations run in order; PRAGMA user_version records the last applied one.
var migrations = []migration{
	{
		version: 1,
		name:    "legacy baseline",
		up: execAll(
			`CREATE TABLE IF NOT EXISTS categories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				color TEXT NOT NULL,
				type TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS transactions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				description TEXT NOT NULL,
				amount REAL NOT NULL,
				date TEXT NOT NULL,
				category_id INTEGER,
				type TEXT NOT NULL
			)`,
		),
	},
	{
		version: 2,
		name:    "scope data by user",
		up:      scopeByUser,
	},
	{
		version: 3,
		name:    "user and date indexes",
		up: execAll(
			`CREATE INDEX IF NOT EXISTS idx_categories_user_id ON categories(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)`,
		),
	},
}

// LatestSchemaVersion is the version a fully migrated database reports.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func execAll(statements ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, s := range statements {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}
}

// scopeByUser rebuilds categories and transactions with an owning user_id.
// Rows that have no owner are attached to the placeholder user, which is only
// created when such rows exist.
func scopeByUser(ctx context.Context, tx *sql.Tx) error {
	err := execAll(
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			email TEXT,
			created_at TEXT NOT NULL
		)`,
		`ALTER TABLE categories RENAME TO categories_old`,
		`ALTER TABLE transactions RENAME TO transactions_old`,
		`CREATE TABLE categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			type TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			description TEXT NOT NULL,
			amount REAL NOT NULL,
			date TEXT NOT NULL,
			category_id INTEGER,
			type TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE SET NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
	)(ctx, tx)
	if err != nil {
		return err
	}

	// Databases written by later versions of the desktop app already carry
	// user_id; keep those owners.
	categoryOwner, err := ownerColumn(ctx, tx, "categories_old")
	if err != nil {
		return err
	}
	transactionOwner, err := ownerColumn(ctx, tx, "transactions_old")
	if err != nil {
		return err
	}

	placeholder := `(SELECT id FROM users WHERE username = '` + PlaceholderUsername + `')`

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, email, created_at)
		SELECT ?, ?, NULL, ?
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE username = ?)
		  AND (EXISTS (SELECT 1 FROM categories_old WHERE `+categoryOwner+` IS NULL)
		    OR EXISTS (SELECT 1 FROM transactions_old WHERE `+transactionOwner+` IS NULL))`,
		PlaceholderUsername, placeholderPasswordHash, formatTime(time.Now()), PlaceholderUsername,
	)
	if err != nil {
		return fmt.Errorf("insert placeholder user: %w", err)
	}

	return execAll(
		`INSERT INTO categories (id, name, color, type, user_id)
		 SELECT id, name, color, type, COALESCE(`+categoryOwner+`, `+placeholder+`) FROM categories_old`,
		`INSERT INTO transactions (id, description, amount, date, category_id, type, user_id)
		 SELECT id, description, amount, date,
		        CASE WHEN category_id IN (SELECT id FROM categories) THEN category_id END,
		        type, COALESCE(`+transactionOwner+`, `+placeholder+`)
		 FROM transactions_old`,
		`DROP TABLE transactions_old`,
		`DROP TABLE categories_old`,
	)(ctx, tx)
}

// ownerColumn returns "user_id" when table has that column and "NULL" when
// it does not, for use inside a SELECT list.
func ownerColumn(ctx context.Context, tx *sql.Tx, table string) (string, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = 'user_id'", table,
	).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return "user_id", nil
	}
	return "NULL", nil
}

// SchemaVersion returns the last applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

func (db *DB) migrate(ctx context.Context) error {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var current int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		log := logrus.WithFields(logrus.Fields{"version": m.version, "migration": m.name})
		if err := applyMigration(ctx, conn, m); err != nil {
			log.WithError(err).Error("schema migration failed")
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		log.Info("schema migration applied")
	}
	return nil
}

// applyMigration runs one step in a transaction with foreign keys disabled,
// as SQLite requires when tables are rebuilt.
func applyMigration(ctx context.Context, conn *sql.Conn, m migration) (err error) {
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	defer func() {
		if _, ferr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); ferr != nil && err == nil {
			err = ferr
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = m.up(ctx, tx); err != nil {
		return err
	}
	if err = checkForeignKeys(ctx, tx); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return err
	}
	return tx.Commit()
}

func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		var table string
		var rowID sql.NullInt64
		var parent string
		var fkid int
		if err := rows.Scan(&table, &rowID, &parent, &fkid); err != nil {
			return err
		}
		return errors.New("foreign key violation in " + table + " referencing " + parent)
	}
	return rows.Err()
}
