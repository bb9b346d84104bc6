package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type State int

const (
	StateIdle State = iota
	StateOpen
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Scope owns one pooled connection until Release. Outside an explicit
// transaction every statement is committed by the engine on its own.
//
// A Scope must not be shared between goroutines.
type Scope struct {
	id         uuid.UUID
	pool       *Pool
	conn       *sqlx.Conn
	tx         *sqlx.Tx
	autocommit bool
	txOpts     *sql.TxOptions
	state      State
	released   bool
	logger     *slog.Logger
}

func newScope(pool *Pool, conn *sqlx.Conn, o scopeOptions, logger *slog.Logger) *Scope {
	id := uuid.New()
	return &Scope{
		id:         id,
		pool:       pool,
		conn:       conn,
		autocommit: o.autocommit,
		txOpts:     o.txOpts,
		state:      StateIdle,
		logger:     logger.With("scope_id", id),
	}
}

func (s *Scope) ID() uuid.UUID    { return s.id }
func (s *Scope) State() State     { return s.state }
func (s *Scope) Autocommit() bool { return s.autocommit }
func (s *Scope) Released() bool   { return s.released }
func (s *Scope) InTransaction() bool {
	return s.state == StateOpen
}

func (s *Scope) Begin(ctx context.Context) error {
	if s.released {
		return fmt.Errorf("Begin: %w", ErrScopeReleased)
	}
	if s.state == StateOpen {
		return fmt.Errorf("Begin: %w", ErrTransactionOpen)
	}
	tx, err := s.conn.BeginTxx(ctx, s.txOpts)
	if err != nil {
		return fmt.Errorf("Begin: %w: %w", ErrBegin, err)
	}
	s.tx = tx
	s.state = StateOpen
	s.logger.Debug("transaction begun")
	return nil
}

// Commit ends the open transaction. A failed commit leaves the scope rolled
// back since database/sql discards the transaction either way.
func (s *Scope) Commit() error {
	if s.released {
		return fmt.Errorf("Commit: %w", ErrScopeReleased)
	}
	if s.state != StateOpen {
		return fmt.Errorf("Commit: %w", ErrNoTransaction)
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		s.state = StateRolledBack
		return fmt.Errorf("Commit: %w: %w", ErrCommit, err)
	}
	s.state = StateCommitted
	s.logger.Debug("transaction committed")
	return nil
}

func (s *Scope) Rollback() error {
	if s.released {
		return fmt.Errorf("Rollback: %w", ErrScopeReleased)
	}
	if s.state != StateOpen {
		return fmt.Errorf("Rollback: %w", ErrNoTransaction)
	}
	err := s.tx.Rollback()
	s.tx = nil
	s.state = StateRolledBack
	// database/sql already rolled back when the begin context was cancelled
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("Rollback: %w: %w", ErrRollback, err)
	}
	s.logger.Debug("transaction rolled back")
	return nil
}

// Release is the exit handler. With a transaction open it rolls back when
// cause is non-nil and commits otherwise, then returns the connection to the
// pool whatever happened. The result is cause, joined with any rollback
// failure, or the commit failure. Subsequent calls return cause unchanged.
func (s *Scope) Release(cause error) error {
	if s.released {
		return cause
	}

	err := cause
	if s.state == StateOpen {
		if cause != nil {
			if rbErr := s.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed", "error", rbErr, "cause", cause)
				err = errors.Join(cause, rbErr)
			}
		} else if cErr := s.Commit(); cErr != nil {
			s.logger.Error("commit failed", "error", cErr)
			err = cErr
		}
	}

	s.released = true
	if relErr := s.pool.Release(s.conn); relErr != nil {
		s.logger.Warn("connection release failed", "error", relErr)
	}
	s.logger.Debug("scope released", "state", s.state.String())
	return err
}

func (s *Scope) Rebind(query string) string {
	return s.pool.dialect.rebind(query)
}

func (s *Scope) q() (queryer, error) {
	if s.released {
		return nil, ErrScopeReleased
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.conn, nil
}

func (s *Scope) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	q, err := s.q()
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer rows.Close()

	result := []Row{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("Query: scan: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: rows: %w", err)
	}
	return result, nil
}

// GetFirst returns the first row or ErrNotFound.
func (s *Scope) GetFirst(ctx context.Context, query string, args ...any) (Row, error) {
	q, err := s.q()
	if err != nil {
		return nil, fmt.Errorf("GetFirst: %w", err)
	}
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetFirst: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("GetFirst: rows: %w", err)
		}
		return nil, fmt.Errorf("GetFirst: %w", ErrNotFound)
	}
	r, err := scanRow(rows)
	if err != nil {
		return nil, fmt.Errorf("GetFirst: scan: %w", err)
	}
	return r, nil
}

// Insert writes row into table and returns the id the engine assigned.
func (s *Scope) Insert(ctx context.Context, table string, row Row) (int64, error) {
	q, err := s.q()
	if err != nil {
		return 0, fmt.Errorf("Insert: %w", err)
	}
	d := s.pool.dialect
	query, args := d.insertSQL(table, row)

	if d.returning {
		var id int64
		if err := q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("Insert: %w", err)
		}
		return id, nil
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("Insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("Insert: last insert id: %w", err)
	}
	return id, nil
}

// Update sets updates on the rows matching where. where uses ? placeholders,
// bound after the update values.
func (s *Scope) Update(ctx context.Context, table string, updates Row, where string, whereArgs ...any) (int64, error) {
	if len(updates) == 0 {
		return 0, fmt.Errorf("Update: %w", ErrEmptyUpdate)
	}
	query, args := s.pool.dialect.updateSQL(table, updates, where, whereArgs)
	n, err := s.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("Update: %w", err)
	}
	return n, nil
}

// Execute runs an arbitrary statement and reports the rows affected.
func (s *Scope) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	n, err := s.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("Execute: %w", err)
	}
	return n, nil
}

func (s *Scope) exec(ctx context.Context, query string, args []any) (int64, error) {
	q, err := s.q()
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
