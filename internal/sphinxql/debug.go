package sphinxql

import (
	"context"
	"strings"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/database"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/logger"
)

// DebugClient never touches the network. It logs every statement it is
// asked to run, remembers every batch, and answers each statement with an
// empty result set.
type DebugClient struct {
	node    config.Node
	log     *logger.Logger
	pending batch
	history [][]string
	closed  bool
}

// NewDebugClient returns a DebugClient standing in for node.
func NewDebugClient(node config.Node, deps Deps) *DebugClient {
	return &DebugClient{
		node: node,
		log:  deps.log().With().Str("node", node.Addr()).Bool("debug", true).Logger(),
	}
}

// Connect implements Client.
func (c *DebugClient) Connect(context.Context) error {
	if c.closed {
		return errs.New(errs.ErrKindConnectionFailed, "client is closed")
	}
	c.log.Debug("debug client connected")
	return nil
}

// AddQuery implements Client.
func (c *DebugClient) AddQuery(stmt string, params Params) {
	c.pending.add(stmt, params, database.EscapeString)
}

// MultiQuery implements Client.
func (c *DebugClient) MultiQuery(ctx context.Context) ([]ResultSet, error) {
	stmts := c.pending.take()
	if len(stmts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "debug batch canceled", err)
	}

	c.history = append(c.history, stmts)

	sets := make([]ResultSet, len(stmts))
	for i, stmt := range stmts {
		c.log.InfoWith("debug statement", map[string]interface{}{
			"index":     i,
			"statement": strings.TrimSuffix(stmt, ";"),
		})
		sets[i] = ResultSet{}
	}
	return sets, nil
}

// Query implements Client.
func (c *DebugClient) Query(ctx context.Context, stmt string, params Params) (ResultSet, error) {
	c.AddQuery(stmt, params)
	return lastSet(c.MultiQuery(ctx))
}

// GetError implements Client. A debug client never fails.
func (c *DebugClient) GetError() string { return "" }

// Close implements Client.
func (c *DebugClient) Close() error {
	c.closed = true
	return nil
}

// History returns every dispatched batch, each as its substituted,
// terminated statements.
func (c *DebugClient) History() [][]string {
	out := make([][]string, len(c.history))
	for i, b := range c.history {
		out[i] = append([]string(nil), b...)
	}
	return out
}
