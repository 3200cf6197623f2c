// Package database defines the transport primitive the query client talks
// to: one connection to one search node, able to escape text, submit a
// multi-statement batch and walk the result groups the server returns.
//
// Layers above this package never import the mysql package directly; they
// receive a Dialer.
package database

import "context"

// Dialer opens a connection to the node at host:port.
type Dialer func(ctx context.Context, host string, port int) (Conn, error)

// Conn is a single connection to a search node. It is not safe for
// concurrent use.
type Conn interface {
	// Escape quotes special characters in text so it can be embedded in a
	// single-quoted string literal.
	Escape(text string) string

	// Submit sends batch as one request. On success the returned Results is
	// positioned on the first result group.
	Submit(ctx context.Context, batch string) (Results, error)

	// LastError returns the text of the last error the server reported on
	// this connection, or "" if there was none.
	LastError() string

	// Close releases the connection.
	Close() error
}

// Results walks the result groups of one submitted batch.
// Callers must always call Close() when done, even on error.
type Results interface {
	// Next advances to the next row of the current group.
	// Returns false when the group is exhausted or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the current group.
	Columns() ([]string, error)

	// Err returns any error encountered while reading the current group or
	// advancing to the next one.
	Err() error

	// NextResultSet advances to the next result group. It returns false
	// when no more groups are pending or when advancing failed; Err tells
	// the two apart.
	NextResultSet() bool

	// Close releases resources held by the batch.
	Close() error
}
