package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/sqlscope/internal/domain"
	"github.com/josh-kwaku/sqlscope/internal/repository"
	"github.com/josh-kwaku/sqlscope/pkg/database"
)

var errSimulated = errors.New("simulated failure")

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through plain, transactional and batch operations on a users table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *database.Database) error {
				if err := repository.EnsureUsersTable(ctx, db, cfg.DBDriver); err != nil {
					return err
				}

				report := map[string]any{}
				steps := []struct {
					name string
					run  func(context.Context, *database.Database) (any, error)
				}{
					{"plain", demoPlain},
					{"transaction", demoTransaction},
					{"batch", demoBatch},
				}
				for _, step := range steps {
					logger.Info("running demo step", "step", step.name)
					out, err := step.run(ctx, db)
					if err != nil {
						return fmt.Errorf("demo %s: %w", step.name, err)
					}
					report[step.name] = out
				}
				return writeJSON(cmd, report)
			})
		},
	}
}

// demoPlain runs each helper as its own autocommitted statement.
func demoPlain(ctx context.Context, db *database.Database) (any, error) {
	id, err := db.Insert(ctx, "users", database.Row{"username": "test_user", "email": "test@example.com"})
	if err != nil {
		return nil, err
	}

	user, err := db.GetFirst(ctx, db.Rebind(`SELECT * FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}

	affected, err := db.Update(ctx, "users", database.Row{"email": "updated@example.com"}, "id = ?", id)
	if err != nil {
		return nil, err
	}

	users, err := db.Query(ctx, `SELECT * FROM users LIMIT 10`)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"inserted_id":   id,
		"user":          user,
		"rows_affected": affected,
		"listed":        len(users),
	}, nil
}

// demoTransaction inserts two users together and rolls both back when the
// second id is even.
func demoTransaction(ctx context.Context, db *database.Database) (any, error) {
	var ids []int64
	err := db.Transaction(ctx, func(ctx context.Context, s *database.Scope) error {
		repo := repository.NewUserRepository(s)
		for _, name := range []string{"transaction_user1", "transaction_user2"} {
			u := &domain.User{Username: name, Email: name + "@example.com"}
			if err := repo.Create(ctx, u); err != nil {
				return err
			}
			ids = append(ids, u.ID)
		}
		if ids[1]%2 == 0 {
			return errSimulated
		}
		return nil
	})

	switch {
	case errors.Is(err, errSimulated):
		logger.Warn("transaction rolled back", "ids", ids, "error", err)
		return map[string]any{"ids": ids, "committed": false}, nil
	case err != nil:
		return nil, err
	}
	return map[string]any{"ids": ids, "committed": true}, nil
}

// demoBatch inserts five users in one transaction and reads them back with
// an expanded IN list.
func demoBatch(ctx context.Context, db *database.Database) (any, error) {
	var rows []database.Row
	err := db.Transaction(ctx, func(ctx context.Context, s *database.Scope) error {
		ids := make([]int64, 0, 5)
		for i := range 5 {
			id, err := s.Insert(ctx, "users", database.Row{
				"username": fmt.Sprintf("batch_user_%d", i),
				"email":    fmt.Sprintf("batch%d@example.com", i),
			})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		query, args, err := sqlx.In(`SELECT * FROM users WHERE id IN (?) ORDER BY id`, ids)
		if err != nil {
			return fmt.Errorf("demoBatch: %w", err)
		}
		rows, err = s.Query(ctx, s.Rebind(query), args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
