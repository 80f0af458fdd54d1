package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// dateLayout is the ISO-8601 local date-time format used for every stored
// timestamp.
const dateLayout = "2006-01-02T15:04:05"

// Options configures the database file and its connection pool.
type Options struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	// AcquireTimeout bounds every repository call, including the wait for a
	// free pooled connection.
	AcquireTimeout time.Duration
}

// DefaultOptions returns the pool defaults for the database at path.
func DefaultOptions(path string) Options {
	return Options{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
		AcquireTimeout:  30 * time.Second,
	}
}

// DB wraps a pooled sql.DB connection.
type DB struct {
	conn           *sql.DB
	acquireTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewDB opens the database at path with the default pool settings and runs
// migrations.
func NewDB(path string) (*DB, error) {
	return Open(context.Background(), DefaultOptions(path))
}

// Open opens a database connection pool and brings the schema up to date.
func Open(ctx context.Context, opts Options) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(opts.Path))
	if err != nil {
		return nil, err
	}

	if isMemory(opts.Path) {
		// Every connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
		conn.SetMaxIdleConns(opts.MaxIdleConns)
		conn.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, acquireTimeout: opts.AcquireTimeout}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logrus.WithField("path", opts.Path).Debug("database ready")
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// Ping checks that a connection can be acquired and used.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Health reports the database status and pool statistics.
func (db *DB) Health(ctx context.Context) map[string]string {
	stats := make(map[string]string)

	if err := db.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	s := db.conn.Stats()
	stats["status"] = "up"
	stats["open_connections"] = fmt.Sprint(s.OpenConnections)
	stats["in_use"] = fmt.Sprint(s.InUse)
	stats["idle"] = fmt.Sprint(s.Idle)
	stats["wait_count"] = fmt.Sprint(s.WaitCount)
	return stats
}

// Close releases every pooled connection. Calling it again is a no-op.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		db.closeErr = db.conn.Close()
	})
	return db.closeErr
}

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.acquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.acquireTimeout)
}

// fail logs a storage failure and wraps it with the operation name.
func fail(op string, err error, fields logrus.Fields) error {
	logrus.WithFields(fields).WithError(err).Errorf("storage: %s failed", op)
	return fmt.Errorf("%s: %w", op, err)
}

func formatTime(t time.Time) string {
	return t.In(time.Local).Format(dateLayout)
}

// parseTime accepts the stored layout, with or without fractional seconds,
// and the shorter minute-precision form older rows may carry.
func parseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range []string{dateLayout, "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// normalizeTime drops sub-second precision and the monotonic reading so an
// in-memory value matches what a later read returns.
func normalizeTime(t time.Time) time.Time {
	return t.In(time.Local).Truncate(time.Second)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
