package database_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sphinxql/internal/database"
	"github.com/koustreak/sphinxql/internal/database/dbtest"
)

func submit(t *testing.T, reply dbtest.Reply) database.Results {
	t.Helper()
	res, err := dbtest.NewConn(reply).Submit(t.Context(), "SELECT 1;")
	require.NoError(t, err)
	return res
}

func TestScanResultSet_ConvertsBytes(t *testing.T) {
	res := submit(t, dbtest.Reply{Groups: []dbtest.Group{{
		Columns: []string{"id", "title", "weight"},
		Rows: [][]any{
			{int64(1), []byte("alpha"), nil},
			{int64(2), "beta", float64(1.5)},
		},
	}}})

	set, err := database.ScanResultSet(res)
	require.NoError(t, err)
	assert.Equal(t, database.ResultSet{
		{"id": int64(1), "title": "alpha", "weight": nil},
		{"id": int64(2), "title": "beta", "weight": float64(1.5)},
	}, set)
}

func TestScanResultSet_EmptyGroupIsNonNil(t *testing.T) {
	res := submit(t, dbtest.Reply{Groups: []dbtest.Group{{Columns: []string{"id"}}}})

	set, err := database.ScanResultSet(res)
	require.NoError(t, err)
	assert.NotNil(t, set)
	assert.Empty(t, set)
}

func TestScanResultSet_NoColumns(t *testing.T) {
	res := submit(t, dbtest.Reply{Groups: []dbtest.Group{{}}})

	set, err := database.ScanResultSet(res)
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestScanResultSet_IterationError(t *testing.T) {
	boom := errors.New("boom")
	res := submit(t, dbtest.Reply{Groups: []dbtest.Group{{
		Columns: []string{"id"},
		Rows:    [][]any{{int64(1)}},
		Err:     boom,
	}}})

	set, err := database.ScanResultSet(res)
	assert.Nil(t, set)
	assert.ErrorIs(t, err, boom)
}

func TestEscapeString(t *testing.T) {
	assert.Equal(t, `O\'Brien`, database.EscapeString("O'Brien"))
	assert.Equal(t, `a\\b\"c\nd\re\0f\Z`, database.EscapeString("a\\b\"c\nd\re\x00f\x1a"))
	assert.Equal(t, "plain text", database.EscapeString("plain text"))
}
