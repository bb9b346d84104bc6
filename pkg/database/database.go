// Package database wraps a database/sql pool with dictionary-in,
// dictionary-out helpers and a connection scope that commits on success and
// rolls back on failure before handing the connection back to the pool.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Executor is the helper surface shared by Database and Scope.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	GetFirst(ctx context.Context, query string, args ...any) (Row, error)
	Insert(ctx context.Context, table string, row Row) (int64, error)
	Update(ctx context.Context, table string, updates Row, where string, whereArgs ...any) (int64, error)
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	Rebind(query string) string
}

var (
	_ Executor = (*Database)(nil)
	_ Executor = (*Scope)(nil)
)

type Option func(*Database)

func WithLogger(l *slog.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.logger = l
		}
	}
}

type scopeOptions struct {
	autocommit bool
	txOpts     *sql.TxOptions
}

type ScopeOption func(*scopeOptions)

// WithAutocommit overrides the configured default for one scope.
func WithAutocommit(on bool) ScopeOption {
	return func(o *scopeOptions) { o.autocommit = on }
}

func WithTxOptions(opts *sql.TxOptions) ScopeOption {
	return func(o *scopeOptions) { o.txOpts = opts }
}

// Database is the handle applications pass around. It is unusable until
// Connect succeeds and again after Close.
type Database struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	pool *Pool
}

func New(cfg Config, opts ...Option) *Database {
	d := &Database{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open is New followed by Connect.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Database, error) {
	d := New(cfg, opts...)
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// NewWithPool builds a connected Database around an existing pool.
func NewWithPool(pool *Pool, opts ...Option) *Database {
	d := New(pool.Config(), opts...)
	d.pool = pool
	return d
}

func (d *Database) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool != nil {
		return fmt.Errorf("Connect: %w", ErrAlreadyConnected)
	}
	pool, err := Connect(ctx, d.cfg)
	if err != nil {
		d.logger.Error("failed to create connection pool", "driver", d.cfg.Driver, "error", err)
		return err
	}
	d.pool = pool
	d.logger.Info("connection pool created",
		"driver", d.cfg.Driver,
		"host", d.cfg.Host,
		"database", d.cfg.Database,
		"min_pool_size", d.cfg.minPoolSize(),
		"max_pool_size", d.cfg.MaxPoolSize,
	)
	return nil
}

// Close drains the pool and resets the handle. Closing an unconnected
// handle is a no-op.
func (d *Database) Close() error {
	d.mu.Lock()
	pool := d.pool
	d.pool = nil
	d.mu.Unlock()

	if pool == nil {
		return nil
	}
	if err := pool.Close(); err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	d.logger.Info("connection pool closed")
	return nil
}

func (d *Database) Pool() (*Pool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.pool == nil {
		return nil, ErrPoolNotInitialized
	}
	return d.pool, nil
}

// Rebind converts ? placeholders to the engine's native syntax. Statements
// given to Query, GetFirst and Execute are sent verbatim otherwise.
func (d *Database) Rebind(query string) string {
	if pool, err := d.Pool(); err == nil {
		return pool.dialect.rebind(query)
	}
	return newDialect(d.cfg.Driver, d.cfg.IDColumn).rebind(query)
}

func (d *Database) Ping(ctx context.Context) error {
	pool, err := d.Pool()
	if err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return pool.Ping(ctx)
}

// Acquire checks out a connection and, unless the scope autocommits, begins
// a transaction on it. The caller must call Release on the returned scope.
func (d *Database) Acquire(ctx context.Context, opts ...ScopeOption) (*Scope, error) {
	pool, err := d.Pool()
	if err != nil {
		return nil, fmt.Errorf("Acquire: %w", err)
	}

	o := scopeOptions{autocommit: *d.cfg.Autocommit}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	s := newScope(pool, conn, o, d.logger)
	s.logger.Debug("connection acquired", "autocommit", o.autocommit)

	if !o.autocommit {
		if err := s.Begin(ctx); err != nil {
			return nil, s.Release(fmt.Errorf("Acquire: %w", err))
		}
	}
	return s, nil
}

// Scope runs fn with a freshly acquired scope and always releases it: a
// returned error, a panic or a cancelled ctx rolls back an open transaction,
// a clean return commits it.
func (d *Database) Scope(ctx context.Context, fn func(ctx context.Context, s *Scope) error, opts ...ScopeOption) error {
	s, err := d.Acquire(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = s.Release(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn(ctx, s)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return s.Release(err)
}

// Transaction is Scope with autocommit forced off, so fn's statements commit
// or roll back together.
func (d *Database) Transaction(ctx context.Context, fn func(ctx context.Context, s *Scope) error, opts ...ScopeOption) error {
	return d.Scope(ctx, fn, append(slices.Clip(opts), WithAutocommit(false))...)
}

func (d *Database) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var rows []Row
	err := d.Scope(ctx, func(ctx context.Context, s *Scope) error {
		var err error
		rows, err = s.Query(ctx, query, args...)
		return err
	})
	return rows, err
}

func (d *Database) GetFirst(ctx context.Context, query string, args ...any) (Row, error) {
	var row Row
	err := d.Scope(ctx, func(ctx context.Context, s *Scope) error {
		var err error
		row, err = s.GetFirst(ctx, query, args...)
		return err
	})
	return row, err
}

func (d *Database) Insert(ctx context.Context, table string, row Row) (int64, error) {
	var id int64
	err := d.Scope(ctx, func(ctx context.Context, s *Scope) error {
		var err error
		id, err = s.Insert(ctx, table, row)
		return err
	})
	return id, err
}

func (d *Database) Update(ctx context.Context, table string, updates Row, where string, whereArgs ...any) (int64, error) {
	var n int64
	err := d.Scope(ctx, func(ctx context.Context, s *Scope) error {
		var err error
		n, err = s.Update(ctx, table, updates, where, whereArgs...)
		return err
	})
	return n, err
}

func (d *Database) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := d.Scope(ctx, func(ctx context.Context, s *Scope) error {
		var err error
		n, err = s.Execute(ctx, query, args...)
		return err
	})
	return n, err
}
