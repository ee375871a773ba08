package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyRows_EmptyRows(t *testing.T) {
	n, err := CopyRows(context.Background(), nil, pgx.Identifier{"layers", "t"}, []string{"a"}, nil, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyRows_Batches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	table := pgx.Identifier{"layers", "FiberCable"}
	cols := []string{"id", "attrs", "geom"}
	mock.ExpectCopyFrom(table, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(table, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(table, cols).WillReturnResult(1)

	rows := [][]any{{1, nil, nil}, {2, nil, nil}, {3, nil, nil}, {4, nil, nil}, {5, nil, nil}}
	n, err := CopyRows(context.Background(), mock, table, cols, rows, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_SingleCopyWithoutBatchSize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"t"}, []string{"a"}).WillReturnResult(3)
	n, err := CopyRows(context.Background(), mock, pgx.Identifier{"t"}, []string{"a"}, [][]any{{1}, {2}, {3}}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	table := pgx.Identifier{"layers", "Anchors"}
	mock.ExpectCopyFrom(table, []string{"a"}).WillReturnResult(1)
	mock.ExpectCopyFrom(table, []string{"a"}).WillReturnError(fmt.Errorf("permission denied"))

	n, err := CopyRows(context.Background(), mock, table, []string{"a"}, [][]any{{1}, {2}}, 1)
	require.Error(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, err.Error(), "COPY INTO layers.Anchors")
	assert.NoError(t, mock.ExpectationsWereMet())
}
