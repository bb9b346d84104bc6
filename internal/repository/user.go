package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/josh-kwaku/sqlscope/internal/domain"
	"github.com/josh-kwaku/sqlscope/pkg/database"
)

const userColumns = `id, username, email, created_at`

// UserRepository works against either a Database or an open Scope, so the
// same methods run standalone or inside a transaction.
type UserRepository struct {
	db database.Executor
}

func NewUserRepository(db database.Executor) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if strings.TrimSpace(u.Username) == "" || strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("Create: %w", domain.ErrInvalidRequest)
	}
	id, err := r.db.Insert(ctx, "users", database.Row{
		"username": u.Username,
		"email":    u.Email,
	})
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	u.ID = id
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row, err := r.db.GetFirst(ctx,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id,
	)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return scanUser(row)
}

func (r *UserRepository) List(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := r.db.Query(ctx,
		r.db.Rebind(`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ?`), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		u, err := scanUser(row)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		users = append(users, *u)
	}
	return users, nil
}

// UpdateEmail reports the rows the engine changed. MySQL counts an unchanged
// value as zero.
func (r *UserRepository) UpdateEmail(ctx context.Context, id int64, email string) (int64, error) {
	n, err := r.db.Update(ctx, "users", database.Row{"email": email}, "id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("UpdateEmail: %w", err)
	}
	return n, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (int64, error) {
	n, err := r.db.Execute(ctx, r.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return 0, fmt.Errorf("Delete: %w", err)
	}
	return n, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	row, err := r.db.GetFirst(ctx, `SELECT COUNT(*) AS n FROM users`)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	n, ok := row.Int64("n")
	if !ok {
		return 0, fmt.Errorf("Count: unexpected value %v", row["n"])
	}
	return n, nil
}

func scanUser(row database.Row) (*domain.User, error) {
	var u domain.User
	var ok bool
	if u.ID, ok = row.Int64("id"); !ok {
		return nil, fmt.Errorf("scanUser: id: unexpected value %v", row["id"])
	}
	u.Username, _ = row.String("username")
	u.Email, _ = row.String("email")
	u.CreatedAt, _ = row.Time("created_at")
	return &u, nil
}
