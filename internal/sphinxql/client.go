// Package sphinxql is the query layer over a pool of search-index replicas:
// clients bound to one resolved node, statement batching with one round trip
// per batch, textual parameter substitution, and a registry handing out one
// client per named profile.
//
// Usage:
//
//	c, err := reg.Get(ctx, "catalog")
//	if err != nil {
//	    return err
//	}
//	c.AddQuery("SELECT id FROM products WHERE MATCH(:q) LIMIT 10", sphinxql.Params{":q": "red shoes"})
//	c.AddQuery("SHOW META", nil)
//	sets, err := c.MultiQuery(ctx) // sets[0]: products, sets[1]: meta
package sphinxql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/database"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/logger"
	"github.com/koustreak/sphinxql/internal/metrics"
)

// Row maps column name to value.
type Row = database.Row

// ResultSet is the materialized rows of one statement.
type ResultSet = database.ResultSet

// Client is the capability set shared by every client variant.
// A Client is owned by one caller at a time; it is not safe for concurrent
// use.
type Client interface {
	// Connect opens the connection to the bound node. Calling it on a
	// connected client is a no-op; a failed connect is terminal.
	Connect(ctx context.Context) error

	// Query runs stmt on its own (together with anything already pending)
	// and returns the last result set produced, or nil.
	Query(ctx context.Context, stmt string, params Params) (ResultSet, error)

	// AddQuery substitutes params into stmt and appends it to the pending
	// batch. It performs no I/O.
	AddQuery(stmt string, params Params)

	// MultiQuery dispatches the pending batch as one request and returns one
	// result set per statement that produced a result, in server order. The
	// pending batch is empty afterwards whatever the outcome.
	MultiQuery(ctx context.Context) ([]ResultSet, error)

	// GetError returns the last error text reported for this client.
	GetError() string

	// Close releases the connection.
	Close() error
}

// State is the lifecycle stage of a NodeClient.
type State int

const (
	StateUnconnected State = iota
	StateConnected
	StateFailed // connect failed; the client must be discarded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Deps are the collaborators a client is built with.
type Deps struct {
	Dialer  database.Dialer
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

func (d Deps) log() *logger.Logger {
	if d.Logger == nil {
		return logger.L()
	}
	return d.Logger
}

// NodeClient talks to one node over one connection.
type NodeClient struct {
	node    config.Node
	dial    database.Dialer
	log     *logger.Logger
	metrics *metrics.Metrics

	state      State
	conn       database.Conn
	connectErr error
	pending    batch
}

// NewNodeClient returns an unconnected client bound to node.
func NewNodeClient(node config.Node, deps Deps) *NodeClient {
	log := deps.log().With().Str("node", node.Addr()).Logger()
	return &NodeClient{
		node:    node,
		dial:    deps.Dialer,
		log:     log,
		metrics: deps.Metrics,
	}
}

// Node returns the node the client is bound to.
func (c *NodeClient) Node() config.Node { return c.node }

// State returns the lifecycle stage.
func (c *NodeClient) State() State { return c.state }

// Connect implements Client.
func (c *NodeClient) Connect(ctx context.Context) error {
	switch c.state {
	case StateConnected:
		return nil
	case StateFailed:
		return c.connectErr
	case StateClosed:
		return errs.New(errs.ErrKindConnectionFailed, "client is closed")
	}

	if c.dial == nil {
		c.state = StateFailed
		c.connectErr = errs.New(errs.ErrKindConfig, "client has no dialer")
		return c.connectErr
	}

	conn, err := c.dial(ctx, c.node.Host, c.node.Port)
	if err != nil {
		c.state = StateFailed
		c.connectErr = errs.Wrap(errs.ErrKindConnectionFailed, "connect to "+c.node.Addr(), err)
		c.log.ErrorWith("connect failed", err, nil)
		return c.connectErr
	}

	c.conn = conn
	c.state = StateConnected
	return nil
}

// AddQuery implements Client. Before Connect, text values are escaped with
// database.EscapeString.
func (c *NodeClient) AddQuery(stmt string, params Params) {
	escape := database.EscapeString
	if c.conn != nil {
		escape = c.conn.Escape
	}
	c.pending.add(stmt, params, escape)
}

// Pending returns the number of statements waiting for dispatch.
func (c *NodeClient) Pending() int { return c.pending.len() }

// MultiQuery implements Client.
//
// A dispatch failure is logged with the server's error text and returns no
// result sets. A statement failing later in the batch returns the result
// sets produced before it together with the error.
func (c *NodeClient) MultiQuery(ctx context.Context) ([]ResultSet, error) {
	stmts := c.pending.take()
	if len(stmts) == 0 {
		return nil, nil
	}

	if c.state != StateConnected {
		err := errs.Newf(errs.ErrKindConnectionFailed, "client is %s", c.state)
		c.log.ErrorWith("batch not dispatched", err, map[string]interface{}{"statements": len(stmts)})
		return nil, err
	}

	start := time.Now()
	res, err := c.conn.Submit(ctx, strings.Join(stmts, ""))
	if err != nil {
		c.metrics.ObserveBatch(metrics.BatchDispatchError, len(stmts), time.Since(start))
		c.log.ErrorWith("batch dispatch failed", err, map[string]interface{}{
			"statements": len(stmts),
			"server":     c.conn.LastError(),
		})
		return nil, err
	}
	defer res.Close()

	sets := make([]ResultSet, 0, len(stmts))
	for {
		set, err := database.ScanResultSet(res)
		if err != nil {
			return c.partial(sets, stmts, start, err)
		}
		if set != nil {
			sets = append(sets, set)
		}
		if !res.NextResultSet() {
			break
		}
	}
	if err := res.Err(); err != nil {
		return c.partial(sets, stmts, start, err)
	}

	c.metrics.ObserveBatch(metrics.BatchOK, len(stmts), time.Since(start))
	return sets, nil
}

func (c *NodeClient) partial(sets []ResultSet, stmts []string, start time.Time, err error) ([]ResultSet, error) {
	c.metrics.ObserveBatch(metrics.BatchPartial, len(stmts), time.Since(start))
	c.log.ErrorWith("batch statement failed", err, map[string]interface{}{
		"statements": len(stmts),
		"completed":  len(sets),
		"server":     c.conn.LastError(),
	})
	return sets, err
}

// Query implements Client.
func (c *NodeClient) Query(ctx context.Context, stmt string, params Params) (ResultSet, error) {
	c.AddQuery(stmt, params)
	return lastSet(c.MultiQuery(ctx))
}

// GetError implements Client.
func (c *NodeClient) GetError() string {
	if c.conn != nil {
		return c.conn.LastError()
	}
	if c.connectErr != nil {
		return c.connectErr.Error()
	}
	return ""
}

// Close implements Client.
func (c *NodeClient) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	c.pending.take()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func lastSet(sets []ResultSet, err error) (ResultSet, error) {
	if len(sets) == 0 {
		return nil, err
	}
	return sets[len(sets)-1], err
}
