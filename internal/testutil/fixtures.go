package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/josh-kwaku/sqlscope/internal/domain"
	"github.com/josh-kwaku/sqlscope/internal/repository"
	"github.com/josh-kwaku/sqlscope/pkg/database"
)

func SeedTestUser(t *testing.T, db database.Executor, username string) *domain.User {
	t.Helper()

	u := &domain.User{
		Username: username,
		Email:    username + "@example.com",
	}
	if err := repository.NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("seed test user %s: %v", username, err)
	}
	return u
}

func SeedTestUsers(t *testing.T, db database.Executor, prefix string, n int) []int64 {
	t.Helper()

	ids := make([]int64, 0, n)
	for i := range n {
		ids = append(ids, SeedTestUser(t, db, fmt.Sprintf("%s_%d", prefix, i)).ID)
	}
	return ids
}

func CountRows(t *testing.T, db database.Executor, table string) int64 {
	t.Helper()

	row, err := db.GetFirst(context.Background(), `SELECT COUNT(*) AS n FROM `+table)
	if err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	n, ok := row.Int64("n")
	if !ok {
		t.Fatalf("count rows in %s: unexpected value %v", table, row["n"])
	}
	return n
}
