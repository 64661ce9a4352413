// Package db provides shared Postgres helpers for bulk loading.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is implemented by both Pool and pgx.Tx.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Table describes a COPY target and the rows to load into it.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// CopyFrom bulk-inserts rows into a table using the COPY protocol.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := c.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: COPY INTO %s: copied %d of %d rows", table, n, len(rows))
	}
	return n, nil
}

// CopyTables copies each table in order and returns the total row count.
// Empty tables are skipped.
func CopyTables(ctx context.Context, c Copier, tables ...Table) (int64, error) {
	var total int64
	for _, t := range tables {
		n, err := CopyFrom(ctx, c, t.Name, t.Columns, t.Rows)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
