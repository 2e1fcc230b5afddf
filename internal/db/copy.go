// Package db provides shared Postgres helpers.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is the COPY half of a pgx pool, connection or transaction.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopySlice bulk-inserts items into table with the COPY protocol. row maps
// each item to one value per column; rows are built as COPY consumes them.
// An empty slice sends nothing.
func CopySlice[T any](ctx context.Context, c Copier, table string, columns []string, items []T, row func(i int, item T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	src := pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		vals := row(i, items[i])
		if len(vals) != len(columns) {
			return nil, eris.Errorf("db: %s row %d has %d values for %d columns", table, i, len(vals), len(columns))
		}
		return vals, nil
	})

	n, err := c.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}
