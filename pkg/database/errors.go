package database

import (
	"errors"
	"fmt"
)

var (
	ErrPoolNotInitialized = errors.New("database pool is not initialized")
	ErrAlreadyConnected   = errors.New("database pool is already connected")
	ErrInvalidConfig      = errors.New("invalid database config")

	ErrAcquisition   = errors.New("connection acquisition failed")
	ErrPoolExhausted = fmt.Errorf("%w: pool exhausted", ErrAcquisition)
	ErrPoolClosed    = fmt.Errorf("%w: pool closed", ErrAcquisition)

	ErrBegin           = errors.New("begin transaction failed")
	ErrCommit          = errors.New("commit failed")
	ErrRollback        = errors.New("rollback failed")
	ErrTransactionOpen = errors.New("transaction already open")
	ErrNoTransaction   = errors.New("no open transaction")
	ErrScopeReleased   = errors.New("scope already released")

	ErrNotFound    = errors.New("not found")
	ErrEmptyUpdate = errors.New("update has no columns")
)
