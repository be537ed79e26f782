package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by WithDriver.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Store is an open SQLite database.
type Store struct {
	db     *sql.DB
	path   string
	driver string
	logger *slog.Logger
}

type options struct {
	driver      string
	busyTimeout time.Duration
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithDriver selects the database/sql driver: "sqlite3" or "sqlite".
func WithDriver(name string) Option {
	return func(o *options) {
		if name != "" {
			o.driver = name
		}
	}
}

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithLogger sets the logger handed to components built on the store.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention
//   - Foreign key enforcement
//   - exclusive transactions
//
// This function is idempotent - safe to call multiple times.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{
		driver:      DriverMattn,
		busyTimeout: DefaultBusyTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	dsn, err := DSN(o.driver, path, o.busyTimeout)
	if err != nil {
		return nil, err
	}

	// Open database (creates file if doesn't exist)
	db, err := sql.Open(o.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	o.logger.Debug("store opened", "path", path, "driver", o.driver)
	return &Store{db: db, path: path, driver: o.driver, logger: o.logger}, nil
}

// Wrap adopts an already opened database. No pragmas are applied; tests
// use it to put a mock driver behind a Store.
func Wrap(db *sql.DB, opts ...Option) *Store {
	o := options{driver: DriverMattn, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{db: db, driver: o.driver, logger: o.logger}
}

// DSN builds the data source name for driver. Per-connection pragmas are
// encoded in the driver's own parameter syntax.
func DSN(driver, path string, busyTimeout time.Duration) (string, error) {
	q := url.Values{}
	q.Set("_txlock", "exclusive")
	ms := fmt.Sprintf("%d", busyTimeout.Milliseconds())

	switch driver {
	case DriverMattn:
		q.Set("_busy_timeout", ms)
		q.Set("_foreign_keys", "on")
		q.Set("_synchronous", "NORMAL")
	case DriverModernc:
		q.Add("_pragma", "busy_timeout("+ms+")")
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "synchronous(NORMAL)")
	default:
		return "", fmt.Errorf("unknown sqlite driver %q (want %q or %q)", driver, DriverMattn, DriverModernc)
	}
	return "file:" + path + "?" + q.Encode(), nil
}

// applyPragmas sets database-wide configuration and checks that the
// per-connection settings took effect.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to execute %q: %w", "PRAGMA journal_mode = WAL", err)
	}

	var fk int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return fmt.Errorf("read foreign_keys: %w", err)
	}
	if fk != 1 {
		return fmt.Errorf("foreign key enforcement is off")
	}
	return nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

// Conn reserves a dedicated connection. The caller must close it.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve connection: %w", err)
	}
	return conn, nil
}

// Version returns the stamped schema version (PRAGMA user_version).
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return v, nil
}
