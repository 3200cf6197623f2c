package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sphinxql/internal/database"
	"github.com/koustreak/sphinxql/internal/errs"
)

func newMockConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	c, err := FromDB(context.Background(), db)
	require.NoError(t, err)
	return c, mock
}

func TestSubmit_MultipleResultGroups(t *testing.T) {
	c, mock := newMockConn(t)

	first := sqlmock.NewRows([]string{"id", "title"}).
		AddRow(int64(1), []byte("alpha")).
		AddRow(int64(2), []byte("beta"))
	second := sqlmock.NewRows([]string{"Variable_name", "Value"}).
		AddRow("total", "2")
	mock.ExpectQuery("SELECT id, title FROM idx;SHOW META;").WillReturnRows(first, second)

	res, err := c.Submit(context.Background(), "SELECT id, title FROM idx;SHOW META;")
	require.NoError(t, err)
	defer res.Close()

	set, err := database.ScanResultSet(res)
	require.NoError(t, err)
	assert.Equal(t, database.ResultSet{
		{"id": int64(1), "title": "alpha"},
		{"id": int64(2), "title": "beta"},
	}, set)

	require.True(t, res.NextResultSet())
	set, err = database.ScanResultSet(res)
	require.NoError(t, err)
	assert.Equal(t, database.ResultSet{{"Variable_name": "total", "Value": "2"}}, set)

	assert.False(t, res.NextResultSet())
	assert.NoError(t, res.Err())
	assert.Empty(t, c.LastError())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_DispatchError(t *testing.T) {
	c, mock := newMockConn(t)

	mock.ExpectQuery("SELEC 1;").
		WillReturnError(&gomysql.MySQLError{Number: 1064, Message: "sphinxql: syntax error, unexpected IDENT"})

	res, err := c.Submit(context.Background(), "SELEC 1;")
	assert.Nil(t, res)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Contains(t, c.LastError(), "syntax error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_FailureInLaterGroup(t *testing.T) {
	c, mock := newMockConn(t)

	first := sqlmock.NewRows([]string{"id"}).AddRow(int64(7))
	second := sqlmock.NewRows([]string{"id"}).
		AddRow(int64(8)).
		RowError(0, &gomysql.MySQLError{Number: 1064, Message: "unknown local index 'nope'"})
	mock.ExpectQuery("SELECT id FROM a;SELECT id FROM nope;").WillReturnRows(first, second)

	res, err := c.Submit(context.Background(), "SELECT id FROM a;SELECT id FROM nope;")
	require.NoError(t, err)
	defer res.Close()

	set, err := database.ScanResultSet(res)
	require.NoError(t, err)
	assert.Len(t, set, 1)

	require.True(t, res.NextResultSet())
	_, err = database.ScanResultSet(res)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Contains(t, c.LastError(), "unknown local index")
}

func TestSubmit_ClearsLastErrorOnSuccess(t *testing.T) {
	c, mock := newMockConn(t)

	mock.ExpectQuery("BAD;").WillReturnError(&gomysql.MySQLError{Number: 1064, Message: "boom"})
	mock.ExpectQuery("SELECT 1;").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	_, err := c.Submit(context.Background(), "BAD;")
	require.Error(t, err)
	require.NotEmpty(t, c.LastError())

	res, err := c.Submit(context.Background(), "SELECT 1;")
	require.NoError(t, err)
	defer res.Close()
	assert.Empty(t, c.LastError())
}

func TestClose(t *testing.T) {
	c, mock := newMockConn(t)
	mock.ExpectClose()

	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildDSN(t *testing.T) {
	cfg := &database.Config{
		ConnectTimeout: 500 * time.Millisecond,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   4 * time.Second,
	}

	parsed, err := gomysql.ParseDSN(buildDSN(cfg, "10.0.0.4", 9312))
	require.NoError(t, err)

	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "10.0.0.4:9312", parsed.Addr)
	assert.True(t, parsed.MultiStatements)
	assert.False(t, parsed.InterpolateParams)
	assert.Equal(t, 500*time.Millisecond, parsed.Timeout)
	assert.Equal(t, 3*time.Second, parsed.ReadTimeout)
	assert.Equal(t, 4*time.Second, parsed.WriteTimeout)
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"O'Brien", `O\'Brien`},
		{`say "hi"`, `say \"hi\"`},
		{`back\slash`, `back\\slash`},
		{"line\nbreak\r", `line\nbreak\r`},
		{"nul\x00ctrl\x1a", `nul\0ctrl\Z`},
		{`\'`, `\\\'`},
	}

	c := &Conn{}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Escape(tt.in))
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"access denied", &gomysql.MySQLError{Number: 1045}, errs.ErrKindConnectionFailed},
		{"too many connections", &gomysql.MySQLError{Number: 1040}, errs.ErrKindConnectionFailed},
		{"parse error", &gomysql.MySQLError{Number: 1064}, errs.ErrKindQueryFailed},
		{"unknown table", &gomysql.MySQLError{Number: 1146}, errs.ErrKindQueryFailed},
		{"unlisted code", &gomysql.MySQLError{Number: 1290}, errs.ErrKindQueryFailed},
		{"invalid conn", gomysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
		{"other", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "op"))
}
