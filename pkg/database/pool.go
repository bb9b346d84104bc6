package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

// Pool hands out exclusive connections from the underlying database/sql pool.
type Pool struct {
	db        *sqlx.DB
	cfg       Config
	dialect   dialect
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewPool wraps an already opened *sql.DB. driverName selects placeholder
// syntax and id retrieval.
func NewPool(db *sql.DB, driverName string, cfg Config) *Pool {
	if cfg.Driver == "" {
		cfg.Driver = driverName
	}
	cfg = cfg.withDefaults()
	return &Pool{
		db:      sqlx.NewDb(db, driverName),
		cfg:     cfg,
		dialect: newDialect(driverName, cfg.IDColumn),
	}
}

// Connect opens the pool, verifies the engine is reachable and warms
// MinPoolSize connections.
func Connect(ctx context.Context, cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("Connect: open: %w: %w", ErrAcquisition, err)
	}

	db.SetMaxOpenConns(cfg.MaxPoolSize)
	db.SetMaxIdleConns(cfg.MaxPoolSize)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Connect: ping: %w: %w", ErrAcquisition, err)
	}

	p := NewPool(db, cfg.Driver, cfg)
	if err := p.warm(ctx, cfg.minPoolSize()); err != nil {
		db.Close()
		return nil, fmt.Errorf("Connect: %w", err)
	}
	return p, nil
}

// warm checks out n connections at once and returns them so they stay idle.
func (p *Pool) warm(ctx context.Context, n int) error {
	conns := make([]*sqlx.Conn, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			c, err := p.db.Connx(gctx)
			if err != nil {
				return err
			}
			conns[i] = c
			return nil
		})
	}
	err := g.Wait()
	for _, c := range conns {
		if c != nil {
			c.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("warm: %w: %w", ErrAcquisition, err)
	}
	return nil
}

// Acquire blocks until a connection is free. With AcquireTimeout set it gives
// up after the timeout with ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*sqlx.Conn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("Acquire: %w", ErrPoolClosed)
	}

	actx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	conn, err := p.db.Connx(actx)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrConnDone) || p.closed.Load():
			return nil, fmt.Errorf("Acquire: %w", ErrPoolClosed)
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return nil, fmt.Errorf("Acquire: %w after %s", ErrPoolExhausted, p.cfg.AcquireTimeout)
		default:
			return nil, fmt.Errorf("Acquire: %w: %w", ErrAcquisition, err)
		}
	}
	return conn, nil
}

// Release returns conn to the pool. Releasing twice reports sql.ErrConnDone.
func (p *Pool) Release(conn *sqlx.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// Close drains the pool. Calling it more than once is safe.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = p.db.Close()
	})
	return p.closeErr
}

func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}

func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

func (p *Pool) Config() Config {
	return p.cfg
}

func (p *Pool) DriverName() string {
	return p.db.DriverName()
}
