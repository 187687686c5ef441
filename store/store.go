// Package store is the temporal approximation store: a persistent index of
// per date validity statistics and computation status, keyed by calendar date
// and spectral band.
//
// Writes go through a single writer lock and one transaction each. Reads do
// not take the lock.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const DatabaseFileName = "approximation.db"

type Options struct {
	// Driver is sqlite3 (default) or postgres.
	Driver string `yaml:"driver" json:"driver"`
	// DSN overrides the database location. For sqlite3 it defaults to
	// approximation.db inside BaseFolder.
	DSN        string `yaml:"dsn" json:"dsn"`
	BaseFolder string `yaml:"-" json:"-"`
	// NeighborWeight balances temporal distance against invalid fraction when
	// ranking neighbours, in [0, 1].
	NeighborWeight float64 `yaml:"neighbor_weight" json:"neighbor_weight"`
	MaxOpenConns   int     `yaml:"max_open_conns" json:"max_open_conns"`
}

func (o Options) Validate() error {
	if _, ok := dialectFor(o.Driver); !ok {
		return fmt.Errorf("unsupported store driver %q", o.Driver)
	}
	if o.NeighborWeight < 0 || o.NeighborWeight > 1 {
		return fmt.Errorf("neighbor weight must be in [0, 1], got %v", o.NeighborWeight)
	}
	return nil
}

type Store struct {
	db      *sql.DB
	dialect *dialect
	weight  float64
	mu      sync.Mutex
}

// Open connects to the store and creates the schema. Any failure here is a
// StoreError that the caller treats as fatal for the run.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, storeErr("open", err)
	}
	d, _ := dialectFor(opts.Driver)

	dsn := opts.DSN
	if d == sqliteDialect {
		if dsn == "" {
			dsn = filepath.Join(opts.BaseFolder, DatabaseFileName)
		}
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, storeErr("open", fmt.Errorf("failed to open database: %w", err))
	}
	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dialect: d, weight: opts.NeighborWeight}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, storeErr("open", fmt.Errorf("failed to migrate database: %w", err))
	}
	return s, nil
}

// sqliteDSN appends the connection pragmas, after any query the DSN already
// carries.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// write runs fn in one transaction while holding the writer lock.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return storeErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr(op, fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
