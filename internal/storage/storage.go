package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const defaultQueryTimeout = 5 * time.Second

type DBConfig struct {
	Driver             string
	DSN                string
	MaxOpenConnections int
	MaxIdleConnections int
	MaxIdleTime        time.Duration
}

func OpenDB(cfg DBConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// sqliteDSN makes transactions take the write lock at BEGIN, so concurrent
// read-then-write transactions wait on the busy timeout instead of failing.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate"
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
	now          func() time.Time
	onProvision  func(Account)
}

type Option func(*Storage)

func WithQueryTimeout(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// WithProvisionHook registers fn to be called after an account has been
// created and committed.
func WithProvisionHook(fn func(Account)) Option {
	return func(s *Storage) {
		s.onProvision = fn
	}
}

func New(db *sql.DB, driver string, opts ...Option) *Storage {
	s := &Storage{
		db:           db,
		driver:       driver,
		queryTimeout: defaultQueryTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *Storage) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Storage) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError(op, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
