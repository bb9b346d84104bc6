package database

import (
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// dialect captures the few places where statement building differs per engine.
type dialect struct {
	bindType  int
	returning bool
	idColumn  string
	mysqlLike bool
}

func newDialect(driverName, idColumn string) dialect {
	d := dialect{
		bindType: sqlx.BindType(driverName),
		idColumn: idColumn,
	}
	switch driverName {
	case DriverPostgres, DriverPgx:
		d.returning = true
	case DriverMySQL:
		d.mysqlLike = true
	}
	return d
}

func (d dialect) rebind(query string) string {
	return sqlx.Rebind(d.bindType, query)
}

func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// insertSQL builds an INSERT with one bound placeholder per column.
func (d dialect) insertSQL(table string, row Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)

	cols := sortedColumns(row)
	args := make([]any, 0, len(cols))
	switch {
	case len(cols) == 0 && d.mysqlLike:
		b.WriteString(" () VALUES ()")
	case len(cols) == 0:
		b.WriteString(" DEFAULT VALUES")
	default:
		b.WriteString(" (")
		b.WriteString(strings.Join(cols, ","))
		b.WriteString(") VALUES (")
		b.WriteString(strings.TrimSuffix(strings.Repeat("?,", len(cols)), ","))
		b.WriteString(")")
		for _, c := range cols {
			args = append(args, row[c])
		}
	}
	if d.returning {
		b.WriteString(" RETURNING ")
		b.WriteString(d.idColumn)
	}
	return d.rebind(b.String()), args
}

// updateSQL binds the update values first and whereArgs after them.
func (d dialect) updateSQL(table string, updates Row, where string, whereArgs []any) (string, []any) {
	cols := sortedColumns(updates)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(whereArgs))
	for i, c := range cols {
		sets[i] = c + "=?"
		args = append(args, updates[c])
	}
	args = append(args, whereArgs...)

	query := "UPDATE " + table + " SET " + strings.Join(sets, ",")
	if strings.TrimSpace(where) != "" {
		query += " WHERE " + where
	}
	return d.rebind(query), args
}
