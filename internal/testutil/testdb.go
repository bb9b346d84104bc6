package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/josh-kwaku/sqlscope/internal/repository"
	"github.com/josh-kwaku/sqlscope/pkg/database"
)

// SetupSQLiteDB opens a file-backed sqlite database under t.TempDir with the
// users table in place. cfg may override pool settings; Driver and Database
// are always set here.
func SetupSQLiteDB(t *testing.T, cfg database.Config) *database.Database {
	t.Helper()
	ctx := context.Background()

	cfg.Driver = database.DriverSQLite
	cfg.Database = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := repository.EnsureUsersTable(ctx, db, database.DriverSQLite); err != nil {
		t.Fatalf("create users table: %v", err)
	}
	return db
}

// NewMockDB returns a connected Database over sqlmock. driverName picks the
// placeholder dialect; SQL is matched exactly.
func NewMockDB(t *testing.T, driverName string, cfg database.Config) (*database.Database, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("open sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	pool := database.NewPool(sqlDB, driverName, cfg)
	return database.NewWithPool(pool), mock
}

func SetupMySQLDB(t *testing.T, cfg database.Config) *database.Database {
	t.Helper()
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("sqlscope_test"),
		mysql.WithUsername("test"),
		mysql.WithPassword("test"),
	)
	if err != nil {
		t.Fatalf("start mysql container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate mysql container: %v", err)
		}
	})

	cfg.Driver = database.DriverMySQL
	cfg.User, cfg.Password, cfg.Database = "test", "test", "sqlscope_test"
	return openContainerDB(t, container, "3306/tcp", cfg)
}

func SetupPostgresDB(t *testing.T, cfg database.Config) *database.Database {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("sqlscope_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	if cfg.Driver == "" {
		cfg.Driver = database.DriverPostgres
	}
	cfg.User, cfg.Password, cfg.Database = "test", "test", "sqlscope_test"
	if cfg.Extras == nil {
		cfg.Extras = map[string]string{}
	}
	cfg.Extras["sslmode"] = "disable"
	return openContainerDB(t, container, "5432/tcp", cfg)
}

func openContainerDB(t *testing.T, container testcontainers.Container, port nat.Port, cfg database.Config) *database.Database {
	t.Helper()
	ctx := context.Background()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	cfg.Host = host
	cfg.Port = mapped.Int()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := repository.EnsureUsersTable(ctx, db, cfg.Driver); err != nil {
		t.Fatalf("create users table: %v", err)
	}
	return db
}
