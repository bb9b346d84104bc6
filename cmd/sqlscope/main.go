package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/sqlscope/internal/config"
	"github.com/josh-kwaku/sqlscope/internal/logging"
	"github.com/josh-kwaku/sqlscope/pkg/database"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	logLevel string
	driver   string
	dbName   string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sqlscope",
		Short:         "Run queries and transactions against a pooled SQL database",
		Long:          `sqlscope talks to MySQL, PostgreSQL or SQLite through a connection pool. Connection settings come from DB_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if driver != "" {
				cfg.DBDriver = driver
			}
			if dbName != "" {
				cfg.DBName = dbName
			}
			logger = logging.Init("sqlscope", cfg.LogLevel, cfg.AppEnv, cfg.LogFile)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Driver name (mysql, postgres, pgx, sqlite); overrides DB_DRIVER")
	rootCmd.PersistentFlags().StringVar(&dbName, "db", "", "Database name or sqlite file path; overrides DB_NAME")

	rootCmd.AddCommand(
		newPingCmd(),
		newQueryCmd(),
		newGetCmd(),
		newExecCmd(),
		newInsertCmd(),
		newUpdateCmd(),
		newDemoCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			// config is not needed here
			PersistentPreRun: func(cmd *cobra.Command, args []string) {},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sqlscope %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	return rootCmd
}

func openDB(ctx context.Context) (*database.Database, error) {
	return database.Open(ctx, cfg.Database(), database.WithLogger(logger))
}

func newPingCmd() *cobra.Command {
	var wait int
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectWithRetry(cmd.Context(), wait)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Ping(cmd.Context()); err != nil {
				return err
			}
			pool, err := db.Pool()
			if err != nil {
				return err
			}
			stats := pool.Stats()
			return writeJSON(cmd, map[string]any{
				"status":           "ok",
				"driver":           pool.DriverName(),
				"open_connections": stats.OpenConnections,
				"idle":             stats.Idle,
			})
		},
	}
	cmd.Flags().IntVar(&wait, "wait", 1, "Attempts to make, one second apart, before giving up")
	return cmd
}

func connectWithRetry(ctx context.Context, attempts int) (*database.Database, error) {
	attempts = max(attempts, 1)
	var err error
	for i := range attempts {
		var db *database.Database
		if db, err = openDB(ctx); err == nil {
			return db, nil
		}
		if i == attempts-1 {
			break
		}
		logger.Info("waiting for database", "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectWithRetry: gave up after %d attempts: %w", attempts, err)
}

func newQueryCmd() *cobra.Command {
	var queryArgs []string
	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a SELECT and print every row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *database.Database) error {
				rows, err := db.Query(ctx, args[0], toAny(queryArgs)...)
				if err != nil {
					return err
				}
				return writeJSON(cmd, rows)
			})
		},
	}
	cmd.Flags().StringArrayVar(&queryArgs, "arg", nil, "Positional parameter value (repeatable)")
	return cmd
}

func newGetCmd() *cobra.Command {
	var queryArgs []string
	cmd := &cobra.Command{
		Use:   "get SQL",
		Short: "Run a SELECT and print the first row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *database.Database) error {
				row, err := db.GetFirst(ctx, args[0], toAny(queryArgs)...)
				if err != nil {
					return err
				}
				return writeJSON(cmd, row)
			})
		},
	}
	cmd.Flags().StringArrayVar(&queryArgs, "arg", nil, "Positional parameter value (repeatable)")
	return cmd
}

func newExecCmd() *cobra.Command {
	var queryArgs []string
	cmd := &cobra.Command{
		Use:   "exec SQL",
		Short: "Run a statement and print the rows affected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *database.Database) error {
				n, err := db.Execute(ctx, args[0], toAny(queryArgs)...)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]int64{"rows_affected": n})
			})
		},
	}
	cmd.Flags().StringArrayVar(&queryArgs, "arg", nil, "Positional parameter value (repeatable)")
	return cmd
}

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert TABLE col=value...",
		Short: "Insert one row and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, db *database.Database) error {
				id, err := db.Insert(ctx, args[0], row)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]int64{"id": id})
			})
		},
	}
}

func newUpdateCmd() *cobra.Command {
	var (
		where     string
		whereArgs []string
	)
	cmd := &cobra.Command{
		Use:   "update TABLE col=value...",
		Short: "Update matching rows and print the rows affected",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, db *database.Database) error {
				n, err := db.Update(ctx, args[0], updates, where, toAny(whereArgs)...)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]int64{"rows_affected": n})
			})
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "WHERE clause with ? placeholders")
	cmd.Flags().StringArrayVar(&whereArgs, "arg", nil, "Value bound to the WHERE clause (repeatable)")
	_ = cmd.MarkFlagRequired("where")
	return cmd
}

func withDB(cmd *cobra.Command, fn func(ctx context.Context, db *database.Database) error) error {
	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func parseAssignments(pairs []string) (database.Row, error) {
	row := make(database.Row, len(pairs))
	for _, p := range pairs {
		col, val, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("invalid assignment %q, want col=value", p)
		}
		row[strings.TrimSpace(col)] = val
	}
	return row, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writeJSON: %w", err)
	}
	return nil
}
