// Package dbtest provides in-memory database.Conn and database.Dialer
// implementations for tests of the layers above the transport.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/koustreak/sphinxql/internal/database"
)

// Group is one scripted result group.
type Group struct {
	Columns []string
	Rows    [][]any
	// Err, when set, is reported once the rows of this group are exhausted
	// and stops iteration there.
	Err error
}

// Reply is what a Conn answers to one Submit.
type Reply struct {
	Groups []Group
	// Err, when set, fails the dispatch itself.
	Err error
}

// EchoReply answers each statement of batch with one group holding a single
// "statement" column whose value is the statement text.
func EchoReply(batch string) Reply {
	var r Reply
	for _, stmt := range Statements(batch) {
		r.Groups = append(r.Groups, Group{
			Columns: []string{"statement"},
			Rows:    [][]any{{stmt}},
		})
	}
	return r
}

// Statements splits a batch on ';' and drops empty entries.
func Statements(batch string) []string {
	var out []string
	for _, s := range strings.Split(batch, ";") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Conn is a scripted database.Conn. Replies are consumed in order; once
// they run out, Submit answers with EchoReply.
type Conn struct {
	mu      sync.Mutex
	replies []Reply
	batches []string
	lastErr string
	closed  bool
}

// NewConn returns a Conn that answers with replies in order.
func NewConn(replies ...Reply) *Conn {
	return &Conn{replies: replies}
}

// Escape implements database.Conn.
func (c *Conn) Escape(text string) string {
	return database.EscapeString(text)
}

// Submit implements database.Conn.
func (c *Conn) Submit(ctx context.Context, batch string) (database.Results, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("dbtest: submit on closed conn")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.batches = append(c.batches, batch)

	reply := EchoReply(batch)
	if len(c.replies) > 0 {
		reply = c.replies[0]
		c.replies = c.replies[1:]
	}

	if reply.Err != nil {
		c.lastErr = reply.Err.Error()
		return nil, reply.Err
	}
	c.lastErr = ""
	return &Results{groups: reply.Groups, row: -1, conn: c}, nil
}

// LastError implements database.Conn.
func (c *Conn) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close implements database.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Batches returns every batch submitted so far.
func (c *Conn) Batches() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.batches...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// Results walks the scripted groups of one Reply.
type Results struct {
	groups []Group
	g      int
	row    int
	err    error
	closed bool
	conn   *Conn
}

func (r *Results) Next() bool {
	if r.err != nil || r.g >= len(r.groups) {
		return false
	}
	grp := r.groups[r.g]
	if r.row+1 < len(grp.Rows) {
		r.row++
		return true
	}
	if grp.Err != nil {
		r.err = grp.Err
		r.conn.setLastErr(grp.Err)
	}
	return false
}

func (r *Results) Scan(dest ...any) error {
	vals := r.groups[r.g].Rows[r.row]
	if len(dest) != len(vals) {
		return fmt.Errorf("dbtest: expected %d destinations, got %d", len(vals), len(dest))
	}
	for i, v := range vals {
		p, ok := dest[i].(*any)
		if !ok {
			return fmt.Errorf("dbtest: destination %d is %T, want *any", i, dest[i])
		}
		*p = v
	}
	return nil
}

func (r *Results) Columns() ([]string, error) {
	if r.g >= len(r.groups) {
		return nil, nil
	}
	return r.groups[r.g].Columns, nil
}

func (r *Results) Err() error { return r.err }

func (r *Results) NextResultSet() bool {
	if r.err != nil || r.g+1 >= len(r.groups) {
		return false
	}
	r.g++
	r.row = -1
	return true
}

func (r *Results) Close() error {
	r.closed = true
	return nil
}

// Network is a scripted set of nodes. Addresses listed in Down refuse
// connections with the mapped error; every other address accepts and gets a
// fresh Conn from NewConn (or an echoing Conn when NewConn is nil).
type Network struct {
	mu      sync.Mutex
	Down    map[string]error
	NewConn func(addr string) *Conn

	dials []string
	conns []*Conn
}

// Dial implements database.Dialer.
func (n *Network) Dial(ctx context.Context, host string, port int) (database.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	n.mu.Lock()
	defer n.mu.Unlock()

	n.dials = append(n.dials, addr)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, down := n.Down[addr]; down {
		return nil, err
	}

	c := NewConn()
	if n.NewConn != nil {
		c = n.NewConn(addr)
	}
	n.conns = append(n.conns, c)
	return c, nil
}

// SetDown marks addr unreachable with err, or reachable again when err is nil.
func (n *Network) SetDown(addr string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.Down, addr)
		return
	}
	if n.Down == nil {
		n.Down = map[string]error{}
	}
	n.Down[addr] = err
}

// Dials returns every address dialed so far, in call order.
func (n *Network) Dials() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.dials...)
}

// Conns returns every Conn handed out so far.
func (n *Network) Conns() []*Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Conn(nil), n.conns...)
}
