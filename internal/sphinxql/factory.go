package sphinxql

import "github.com/koustreak/sphinxql/internal/config"

// Factory builds an unconnected Client bound to node.
type Factory func(node config.Node, deps Deps) Client

// NewFactory picks the client variant once, at construction time: the
// DebugClient when debug is set, the NodeClient otherwise.
func NewFactory(debug bool) Factory {
	if debug {
		return func(node config.Node, deps Deps) Client {
			return NewDebugClient(node, deps)
		}
	}
	return func(node config.Node, deps Deps) Client {
		return NewNodeClient(node, deps)
	}
}
