package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is implemented by pgx pools, connections and transactions.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyRows bulk-inserts rows into table with the COPY protocol, batchSize
// rows per COPY. batchSize <= 0 sends everything in one COPY.
func CopyRows(ctx context.Context, c Copier, table pgx.Identifier, columns []string, rows [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = len(rows)
	}
	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		n, err := c.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows[start:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s", strings.Join(table, "."))
		}
		total += n
	}
	return total, nil
}
