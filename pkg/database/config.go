package database

import (
	"fmt"
	"time"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

const (
	DefaultHost         = "localhost"
	DefaultMySQLPort    = 3306
	DefaultPostgresPort = 5432
	DefaultCharset      = "utf8mb4"
	DefaultMinPoolSize  = 1
	DefaultMaxPoolSize  = 10
	DefaultIDColumn     = "id"
)

// Config describes how to reach the engine and how large the pool may grow.
// Zero values are replaced by the defaults in withDefaults.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	// Database is the schema name, or the file path for sqlite.
	Database string
	Charset  string

	// MinPoolSize connections are opened at Connect; nil means 1 and 0
	// skips the warm-up.
	MinPoolSize     *int
	MaxPoolSize     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// AcquireTimeout bounds how long Acquire waits for a free connection.
	// Zero waits until the caller's context is done.
	AcquireTimeout time.Duration

	// Autocommit is the default scope mode; nil means true.
	Autocommit *bool

	// IDColumn is returned by inserts on engines without LastInsertId.
	IDColumn string

	// Extras are engine-specific DSN parameters, passed through verbatim.
	Extras map[string]string
}

func Bool(v bool) *bool { return &v }

func Int(v int) *int { return &v }

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverMySQL
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		switch c.Driver {
		case DriverPostgres, DriverPgx:
			c.Port = DefaultPostgresPort
		default:
			c.Port = DefaultMySQLPort
		}
	}
	if c.Charset == "" {
		c.Charset = DefaultCharset
	}
	if c.MinPoolSize == nil {
		c.MinPoolSize = Int(DefaultMinPoolSize)
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	if c.Autocommit == nil {
		c.Autocommit = Bool(true)
	}
	if c.IDColumn == "" {
		c.IDColumn = DefaultIDColumn
	}
	return c
}

func (c Config) validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Driver)
	}
	minSize := c.minPoolSize()
	if minSize < 0 || c.MaxPoolSize < 0 {
		return fmt.Errorf("%w: pool sizes must not be negative", ErrInvalidConfig)
	}
	if minSize > c.MaxPoolSize {
		return fmt.Errorf("%w: min pool size %d exceeds max %d", ErrInvalidConfig, minSize, c.MaxPoolSize)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("%w: acquire timeout must not be negative", ErrInvalidConfig)
	}
	if c.Driver == DriverSQLite && c.Database == "" {
		return fmt.Errorf("%w: sqlite requires a database path", ErrInvalidConfig)
	}
	return nil
}

func (c Config) minPoolSize() int {
	if c.MinPoolSize == nil {
		return DefaultMinPoolSize
	}
	return *c.MinPoolSize
}
