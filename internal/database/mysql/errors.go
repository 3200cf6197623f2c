package mysql

import (
	"context"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/sphinxql/internal/errs"
)

// MySQL error numbers searchd reuses on its SphinxQL listener.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied   = 1045
	errUnknownDB      = 1049
	errTooManyConns   = 1040
	errBadField       = 1054
	errParse          = 1064
	errNoSuchTable    = 1146
	errConnRefused    = 2003
	errServerGone     = 2006
	errServerLost     = 2013
	errUnknownHost    = 2005
	errHandshakeError = 2012
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errAccessDenied, errUnknownDB, errTooManyConns:
		return errs.ErrKindConnectionFailed
	case errConnRefused, errServerGone, errServerLost, errUnknownHost, errHandshakeError:
		return errs.ErrKindConnectionFailed
	case errBadField, errParse, errNoSuchTable:
		return errs.ErrKindQueryFailed
	default:
		// searchd reports most query-level problems with a generic 1064.
		return errs.ErrKindQueryFailed
	}
}
