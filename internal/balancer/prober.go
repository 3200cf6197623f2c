package balancer

import (
	"context"
	"time"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/database"
)

// Prober decides whether a node is reachable. A nil error means live.
type Prober interface {
	Probe(ctx context.Context, node config.Node) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, node config.Node) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, node config.Node) error {
	return f(ctx, node)
}

// DialProber treats a node as live when a connection to it can be opened.
// The connection is closed straight away.
type DialProber struct {
	Dial database.Dialer
	// Timeout bounds each attempt on top of the caller's context. Zero
	// leaves it to the dialer.
	Timeout time.Duration
}

// Probe implements Prober.
func (p DialProber) Probe(ctx context.Context, node config.Node) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	conn, err := p.Dial(ctx, node.Host, node.Port)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// AlwaysLive reports every node reachable without touching the network.
// Used with the debug client.
var AlwaysLive = ProberFunc(func(context.Context, config.Node) error { return nil })
