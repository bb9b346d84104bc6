package repository

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/sqlscope/pkg/database"
)

const (
	mysqlUsersTable = `CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(50) NOT NULL,
		email VARCHAR(100) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	postgresUsersTable = `CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(50) NOT NULL,
		email VARCHAR(100) NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	)`

	sqliteUsersTable = `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
)

func UsersTableDDL(driver string) string {
	switch driver {
	case database.DriverPostgres, database.DriverPgx:
		return postgresUsersTable
	case database.DriverSQLite:
		return sqliteUsersTable
	default:
		return mysqlUsersTable
	}
}

// EnsureUsersTable creates the users table when it is missing.
func EnsureUsersTable(ctx context.Context, db database.Executor, driver string) error {
	if _, err := db.Execute(ctx, UsersTableDDL(driver)); err != nil {
		return fmt.Errorf("EnsureUsersTable: %w", err)
	}
	return nil
}
