// Package mysql implements database.Conn over the MySQL wire protocol,
// which searchd speaks on its SphinxQL listener.
//
// Batches go out through the text protocol with multi-statements enabled;
// no prepared statements are ever issued because searchd does not support
// them for multi-statement requests.
package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver

	"github.com/koustreak/sphinxql/internal/database"
	"github.com/koustreak/sphinxql/internal/errs"
)

// Conn is a database.Conn pinned to exactly one server connection.
type Conn struct {
	db      *sql.DB
	conn    *sql.Conn
	lastErr string
}

// Dialer returns a database.Dialer that opens connections with cfg.
func Dialer(cfg *database.Config) database.Dialer {
	return func(ctx context.Context, host string, port int) (database.Conn, error) {
		return Open(ctx, cfg, host, port)
	}
}

// Open connects to the node at host:port. The handshake is bounded by
// cfg.ConnectTimeout in addition to ctx.
func Open(ctx context.Context, cfg *database.Config, host string, port int) (*Conn, error) {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}

	db, err := sql.Open("mysql", buildDSN(cfg, host, port))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid DSN", err)
	}

	c, err := FromDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// FromDB pins one connection out of db. Open uses it; tests hand it a
// mocked *sql.DB.
func FromDB(ctx context.Context, db *sql.DB) (*Conn, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, mapError(err, "connect failed")
	}
	return &Conn{db: db, conn: conn}, nil
}

// Escape implements database.Conn.
func (c *Conn) Escape(text string) string {
	return database.EscapeString(text)
}

// Submit implements database.Conn.
func (c *Conn) Submit(ctx context.Context, batch string) (database.Results, error) {
	rows, err := c.conn.QueryContext(ctx, batch)
	if err != nil {
		c.lastErr = err.Error()
		return nil, mapError(err, "batch dispatch failed")
	}
	c.lastErr = ""
	return &results{rows: rows, conn: c}, nil
}

// LastError implements database.Conn.
func (c *Conn) LastError() string {
	return c.lastErr
}

// Close implements database.Conn.
func (c *Conn) Close() error {
	err := c.conn.Close()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return mapError(err, "close failed")
	}
	return nil
}

// --- sql.Rows wrapper ---

type results struct {
	rows *sql.Rows
	conn *Conn
}

func (r *results) Next() bool                 { return r.rows.Next() }
func (r *results) Columns() ([]string, error) { return r.rows.Columns() }
func (r *results) NextResultSet() bool        { return r.rows.NextResultSet() }

func (r *results) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

func (r *results) Err() error {
	err := r.rows.Err()
	if err == nil {
		return nil
	}
	r.conn.lastErr = err.Error()
	return mapError(err, "batch statement failed")
}

func (r *results) Close() error {
	if err := r.rows.Close(); err != nil {
		return mapError(err, "close results failed")
	}
	return nil
}
