package sphinxql_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sphinxql/internal/database/dbtest"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/sphinxql"
)

func TestListIndexes(t *testing.T) {
	c, conn := connected(t, dbtest.Reply{Groups: []dbtest.Group{{
		Columns: []string{"Index", "Type"},
		Rows: [][]any{
			{[]byte("products"), []byte("local")},
			{[]byte("everything"), []byte("distributed")},
		},
	}}})

	got, err := sphinxql.ListIndexes(t.Context(), c)
	require.NoError(t, err)

	assert.Equal(t, []sphinxql.IndexInfo{
		{Name: "products", Type: "local"},
		{Name: "everything", Type: "distributed"},
	}, got)
	assert.Equal(t, []string{"SHOW TABLES;"}, conn.Batches())
}

func TestListIndexes_TableColumn(t *testing.T) {
	c, _ := connected(t, dbtest.Reply{Groups: []dbtest.Group{{
		Columns: []string{"Table", "Type"},
		Rows:    [][]any{{"rt_orders", "rt"}},
	}}})

	got, err := sphinxql.ListIndexes(t.Context(), c)
	require.NoError(t, err)
	assert.Equal(t, []sphinxql.IndexInfo{{Name: "rt_orders", Type: "rt"}}, got)
}

func TestListIndexes_UnexpectedShape(t *testing.T) {
	c, _ := connected(t, dbtest.Reply{Groups: []dbtest.Group{{
		Columns: []string{"Something"},
		Rows:    [][]any{{"x"}},
	}}})

	_, err := sphinxql.ListIndexes(t.Context(), c)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestListIndexes_ServerError(t *testing.T) {
	boom := errors.New("lost connection")
	c, _ := connected(t, dbtest.Reply{Err: boom})

	_, err := sphinxql.ListIndexes(t.Context(), c)
	assert.ErrorIs(t, err, boom)
}

func TestDescribeIndex(t *testing.T) {
	c, conn := connected(t, dbtest.Reply{Groups: []dbtest.Group{{
		Columns: []string{"Field", "Type"},
		Rows: [][]any{
			{"id", "bigint"},
			{"title", "field"},
			{"price", "float"},
		},
	}}})

	got, err := sphinxql.DescribeIndex(t.Context(), c, "products")
	require.NoError(t, err)

	assert.Equal(t, []sphinxql.FieldInfo{
		{Field: "id", Type: "bigint"},
		{Field: "title", Type: "field"},
		{Field: "price", Type: "float"},
	}, got)
	assert.Equal(t, []string{"DESCRIBE `products`;"}, conn.Batches())
}

func TestDescribeIndex_NeedsName(t *testing.T) {
	c, conn := connected(t)

	_, err := sphinxql.DescribeIndex(t.Context(), c, "")
	assert.True(t, errs.IsInvalidInput(err))
	assert.Empty(t, conn.Batches())
}

func TestMeta(t *testing.T) {
	c, _ := connected(t, dbtest.Reply{Groups: []dbtest.Group{{
		Columns: []string{"Variable_name", "Value"},
		Rows: [][]any{
			{"total", "20"},
			{"total_found", int64(1342)},
			{"time", "0.004"},
		},
	}}})

	got, err := sphinxql.Meta(t.Context(), c)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"total":       "20",
		"total_found": "1342",
		"time":        "0.004",
	}, got)
}
