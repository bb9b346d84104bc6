package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/sqlscope/internal/testutil"
	"github.com/josh-kwaku/sqlscope/pkg/database"
)

const peopleTable = `CREATE TABLE people (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER,
	score REAL
)`

var errBody = errors.New("body failed")

func setupPeople(t *testing.T, cfg database.Config) *database.Database {
	t.Helper()
	db := testutil.SetupSQLiteDB(t, cfg)
	_, err := db.Execute(context.Background(), peopleTable)
	require.NoError(t, err)
	return db
}

func inUse(t *testing.T, db *database.Database) int {
	t.Helper()
	pool, err := db.Pool()
	require.NoError(t, err)
	return pool.Stats().InUse
}

func TestInsertThenGetFirst(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	id, err := db.Insert(ctx, "people", database.Row{"name": "A", "age": 25})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	row, err := db.GetFirst(ctx, "SELECT name, age FROM people WHERE id = ?", id)
	require.NoError(t, err)
	assert.Equal(t, database.Row{"name": "A", "age": int64(25)}, row)
}

func TestInsertNullAndFloat(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	id, err := db.Insert(ctx, "people", database.Row{"name": "B", "age": nil, "score": 4.5})
	require.NoError(t, err)

	row, err := db.GetFirst(ctx, "SELECT * FROM people WHERE id = ?", id)
	require.NoError(t, err)
	assert.True(t, row.IsNull("age"))
	assert.Equal(t, 4.5, row["score"])
}

func TestQueryNoMatchReturnsEmptySlice(t *testing.T) {
	db := setupPeople(t, database.Config{})

	rows, err := db.Query(context.Background(), "SELECT * FROM people WHERE name = ?", "nobody")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestGetFirstNotFound(t *testing.T) {
	db := setupPeople(t, database.Config{})

	row, err := db.GetFirst(context.Background(), "SELECT * FROM people WHERE id = ?", 999)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Nil(t, row)
}

func TestUpdate(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	id, err := db.Insert(ctx, "people", database.Row{"name": "A", "age": 25})
	require.NoError(t, err)

	n, err := db.Update(ctx, "people", database.Row{"age": 26}, "id = ?", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.Update(ctx, "people", database.Row{"age": 99}, "id = ?", id+100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	row, err := db.GetFirst(ctx, "SELECT age FROM people WHERE id = ?", id)
	require.NoError(t, err)
	assert.Equal(t, int64(26), row["age"])
}

func TestUpdateBindsWhereValue(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	_, err := db.Insert(ctx, "people", database.Row{"name": "A", "age": 1})
	require.NoError(t, err)

	n, err := db.Update(ctx, "people", database.Row{"age": 2}, "name = ?", `x" OR "1"="1`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpdateEmpty(t *testing.T) {
	db := setupPeople(t, database.Config{})

	_, err := db.Update(context.Background(), "people", database.Row{}, "id = ?", 1)
	assert.ErrorIs(t, err, database.ErrEmptyUpdate)
}

func TestExecuteReturnsAffected(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := db.Insert(ctx, "people", database.Row{"name": name})
		require.NoError(t, err)
	}

	n, err := db.Execute(ctx, "DELETE FROM people WHERE name <> ?", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = db.Execute(ctx, "DELETE FROM people WHERE name = ?", "Z")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStatementFailureSurfaced(t *testing.T) {
	db := setupPeople(t, database.Config{})

	_, err := db.Execute(context.Background(), "INSERT INTO missing_table (x) VALUES (1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_table")
	assert.Equal(t, 0, inUse(t, db))
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, s *database.Scope) error {
		assert.Equal(t, database.StateOpen, s.State())
		for _, name := range []string{"A", "B", "C"} {
			if _, err := s.Insert(ctx, "people", database.Row{"name": name}); err != nil {
				return err
			}
		}

		// another connection must not see uncommitted rows
		rows, err := db.Query(ctx, "SELECT * FROM people")
		require.NoError(t, err)
		assert.Empty(t, rows)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), testutil.CountRows(t, db, "people"))
	assert.Equal(t, 0, inUse(t, db))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	_, err := db.Insert(ctx, "people", database.Row{"name": "kept"})
	require.NoError(t, err)

	var scope *database.Scope
	err = db.Transaction(ctx, func(ctx context.Context, s *database.Scope) error {
		scope = s
		if _, err := s.Insert(ctx, "people", database.Row{"name": "discarded"}); err != nil {
			return err
		}
		return errBody
	})
	assert.ErrorIs(t, err, errBody)
	assert.Equal(t, database.StateRolledBack, scope.State())
	assert.True(t, scope.Released())

	rows, err := db.Query(ctx, "SELECT name FROM people")
	require.NoError(t, err)
	assert.Equal(t, []database.Row{{"name": "kept"}}, rows)
	assert.Equal(t, 0, inUse(t, db))
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	assert.PanicsWithValue(t, "boom", func() {
		_ = db.Transaction(ctx, func(ctx context.Context, s *database.Scope) error {
			if _, err := s.Insert(ctx, "people", database.Row{"name": "discarded"}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	assert.Equal(t, int64(0), testutil.CountRows(t, db, "people"))
	assert.Equal(t, 0, inUse(t, db))
}

func TestTransactionRollsBackOnCancel(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx, cancel := context.WithCancel(context.Background())

	err := db.Transaction(ctx, func(ctx context.Context, s *database.Scope) error {
		if _, err := s.Insert(ctx, "people", database.Row{"name": "discarded"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(0), testutil.CountRows(t, db, "people"))
	// database/sql may still be discarding the cancelled connection
	assert.Eventually(t, func() bool { return inUse(t, db) == 0 }, time.Second, 10*time.Millisecond)
}

func TestAutocommitScopeKeepsEarlierStatements(t *testing.T) {
	db := setupPeople(t, database.Config{Autocommit: database.Bool(true)})
	ctx := context.Background()

	err := db.Scope(ctx, func(ctx context.Context, s *database.Scope) error {
		assert.Equal(t, database.StateIdle, s.State())
		if _, err := s.Insert(ctx, "people", database.Row{"name": "A"}); err != nil {
			return err
		}
		return errBody
	})
	assert.ErrorIs(t, err, errBody)

	// each statement committed on its own, so the failure undoes nothing
	assert.Equal(t, int64(1), testutil.CountRows(t, db, "people"))
}

func TestDefaultAutocommitOff(t *testing.T) {
	db := setupPeople(t, database.Config{Autocommit: database.Bool(false)})
	ctx := context.Background()

	err := db.Scope(ctx, func(ctx context.Context, s *database.Scope) error {
		assert.False(t, s.Autocommit())
		assert.True(t, s.InTransaction())
		_, err := s.Insert(ctx, "people", database.Row{"name": "A"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), testutil.CountRows(t, db, "people"))

	err = db.Scope(ctx, func(ctx context.Context, s *database.Scope) error {
		assert.True(t, s.Autocommit())
		assert.False(t, s.InTransaction())
		return nil
	}, database.WithAutocommit(true))
	require.NoError(t, err)
}

func TestManualTransactionControl(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	s, err := db.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.StateIdle, s.State())

	assert.ErrorIs(t, s.Commit(), database.ErrNoTransaction)
	assert.ErrorIs(t, s.Rollback(), database.ErrNoTransaction)

	require.NoError(t, s.Begin(ctx))
	assert.ErrorIs(t, s.Begin(ctx), database.ErrTransactionOpen)
	_, err = s.Insert(ctx, "people", database.Row{"name": "rolled"})
	require.NoError(t, err)
	require.NoError(t, s.Rollback())
	assert.Equal(t, database.StateRolledBack, s.State())

	require.NoError(t, s.Begin(ctx))
	_, err = s.Insert(ctx, "people", database.Row{"name": "committed"})
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	assert.Equal(t, database.StateCommitted, s.State())

	require.NoError(t, s.Release(nil))
	require.NoError(t, s.Release(nil))

	_, err = s.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, database.ErrScopeReleased)
	assert.ErrorIs(t, s.Begin(ctx), database.ErrScopeReleased)

	rows, err := db.Query(ctx, "SELECT name FROM people")
	require.NoError(t, err)
	assert.Equal(t, []database.Row{{"name": "committed"}}, rows)
}

func TestReleaseCommitsOpenTransaction(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	s, err := db.Acquire(ctx, database.WithAutocommit(false))
	require.NoError(t, err)
	_, err = s.Insert(ctx, "people", database.Row{"name": "A"})
	require.NoError(t, err)

	require.NoError(t, s.Release(nil))
	assert.Equal(t, database.StateCommitted, s.State())
	assert.Equal(t, int64(1), testutil.CountRows(t, db, "people"))
}

func TestConcurrentTransactions(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	ids := make([][]int64, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i := range 2 {
		g.Go(func() error {
			return db.Transaction(gctx, func(ctx context.Context, s *database.Scope) error {
				for j := range 5 {
					id, err := s.Insert(ctx, "people", database.Row{"name": "w", "age": i*10 + j})
					if err != nil {
						return err
					}
					ids[i] = append(ids[i], id)
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(10), testutil.CountRows(t, db, "people"))
	seen := map[int64]bool{}
	for _, group := range ids {
		for _, id := range group {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	db := setupPeople(t, database.Config{MinPoolSize: database.Int(1), MaxPoolSize: 1})
	ctx := context.Background()

	first, err := db.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan *database.Scope, 1)
	go func() {
		s, err := db.Acquire(ctx)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- s
	}()

	select {
	case <-acquired:
		t.Fatal("acquire did not wait for a free connection")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Release(nil))

	select {
	case s, ok := <-acquired:
		require.True(t, ok, "waiting acquire failed")
		require.NoError(t, s.Release(nil))
	case <-time.After(5 * time.Second):
		t.Fatal("waiting acquire never completed")
	}
	assert.Equal(t, 0, inUse(t, db))
}

func TestAcquireTimeoutExhaustsPool(t *testing.T) {
	db := setupPeople(t, database.Config{MinPoolSize: database.Int(1), MaxPoolSize: 1, AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	first, err := db.Acquire(ctx)
	require.NoError(t, err)
	defer first.Release(nil)

	_, err = db.Acquire(ctx)
	assert.ErrorIs(t, err, database.ErrPoolExhausted)
	assert.ErrorIs(t, err, database.ErrAcquisition)
}

func TestPoolNotInitialized(t *testing.T) {
	ctx := context.Background()
	db := database.New(database.Config{Driver: database.DriverSQLite, Database: ":memory:"})

	_, err := db.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, database.ErrPoolNotInitialized)
	_, err = db.Acquire(ctx)
	assert.ErrorIs(t, err, database.ErrPoolNotInitialized)
	assert.NoError(t, db.Close())
}

func TestConnectAndCloseLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupPeople(t, database.Config{})

	assert.ErrorIs(t, db.Connect(ctx), database.ErrAlreadyConnected)
	require.NoError(t, db.Ping(ctx))

	pool, err := db.Pool()
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Execute(ctx, "SELECT 1")
	assert.ErrorIs(t, err, database.ErrPoolNotInitialized)
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, database.ErrPoolClosed)
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	_, err := database.Open(context.Background(), database.Config{
		Driver:      database.DriverSQLite,
		Database:    ":memory:",
		MinPoolSize: database.Int(5),
		MaxPoolSize: 2,
	})
	assert.ErrorIs(t, err, database.ErrInvalidConfig)
}

func TestConnectWarmsMinPoolSize(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		minSize *int
		want    int
	}{
		// Ping inside Connect leaves one idle connection behind.
		{"zero skips warm-up", database.Int(0), 1},
		{"three", database.Int(3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := database.Open(ctx, database.Config{
				Driver:      database.DriverSQLite,
				Database:    filepath.Join(t.TempDir(), "warm.db"),
				MinPoolSize: tt.minSize,
				MaxPoolSize: 4,
			})
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })

			pool, err := db.Pool()
			require.NoError(t, err)
			assert.Equal(t, tt.want, pool.Stats().OpenConnections)
		})
	}
}

func TestTransactionLeavesCallerOptionsAlone(t *testing.T) {
	db := setupPeople(t, database.Config{})
	ctx := context.Background()

	opts := []database.ScopeOption{database.WithAutocommit(true), database.WithAutocommit(true)}

	err := db.Transaction(ctx, func(ctx context.Context, s *database.Scope) error {
		assert.True(t, s.InTransaction())
		return nil
	}, opts[:1]...)
	require.NoError(t, err)

	err = db.Scope(ctx, func(ctx context.Context, s *database.Scope) error {
		assert.True(t, s.Autocommit())
		assert.False(t, s.InTransaction())
		return nil
	}, opts[1])
	require.NoError(t, err)
}
