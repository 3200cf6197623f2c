package sphinxql

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/logger"
)

// NodeSelector resolves a pooled profile to one node. Invalidate drops
// whatever the selector remembers about the reachability of p's nodes.
type NodeSelector interface {
	SelectNode(ctx context.Context, p config.Profile) (config.Node, error)
	Invalidate(ctx context.Context, p config.Profile)
}

// Registry hands out one connected Client per profile name. Clients are
// built on first request and reused afterwards. The composition root owns
// the Registry and passes it to whoever needs clients.
//
// Get is safe for concurrent use; the clients it returns are not.
type Registry struct {
	profiles config.Provider
	selector NodeSelector
	factory  Factory
	deps     Deps

	mu      sync.Mutex
	clients map[string]Client
}

// NewRegistry returns an empty Registry. selector may be nil when no profile
// is pooled.
func NewRegistry(profiles config.Provider, selector NodeSelector, factory Factory, deps Deps) *Registry {
	if factory == nil {
		factory = NewFactory(false)
	}
	return &Registry{
		profiles: profiles,
		selector: selector,
		factory:  factory,
		deps:     deps,
		clients:  map[string]Client{},
	}
}

// Get returns the client for the named profile, building and connecting it
// on first use. Profile names are case-insensitive.
//
// A missing or inactive profile is a configuration error. For a pooled
// profile the node comes from the selector, so an entirely dead pool fails
// with ErrKindNoReachableNode. A failed connect is returned as is and
// nothing is cached; for a pool the selector's health hints are dropped too,
// so the next Get probes the pool again.
func (r *Registry) Get(ctx context.Context, name string) (Client, error) {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	p, err := r.profiles.Profile(name)
	if err != nil {
		r.logFor(ctx).ErrorWith("profile lookup failed", err, map[string]interface{}{"profile": name})
		return nil, err
	}
	if !p.Active {
		return nil, errs.Newf(errs.ErrKindConfig, "profile %q is inactive", name)
	}
	if len(p.Nodes) == 0 {
		return nil, errs.Newf(errs.ErrKindConfig, "profile %q has no nodes", name)
	}

	node := p.Nodes[0]
	if p.Balanced() {
		if r.selector == nil {
			return nil, errs.Newf(errs.ErrKindConfig, "profile %q is a pool but no node selector is configured", name)
		}
		node, err = r.selector.SelectNode(ctx, p)
		if err != nil {
			return nil, err
		}
	}

	deps := r.deps
	deps.Logger = r.logFor(ctx)
	c := r.factory(node, deps)
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		if p.Balanced() {
			r.selector.Invalidate(ctx, p)
		}
		return nil, err
	}

	r.clients[key] = c
	return c, nil
}

// Discard closes and forgets the client of the named profile and, for a
// pool, drops the selector's health hints, so the next Get probes and
// resolves a node again. Callers use it after a connectivity error.
func (r *Registry) Discard(ctx context.Context, name string) error {
	key := strings.ToLower(name)

	r.mu.Lock()
	c, ok := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()

	if p, err := r.profiles.Profile(name); err == nil && p.Balanced() && r.selector != nil {
		r.selector.Invalidate(ctx, p)
	}

	if !ok {
		return nil
	}
	return c.Close()
}

// logFor returns the configured logger, or the one carried by ctx.
func (r *Registry) logFor(ctx context.Context) *logger.Logger {
	if r.deps.Logger != nil {
		return r.deps.Logger
	}
	return logger.FromContext(ctx)
}

// Close closes every client and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = map[string]Client{}
	r.mu.Unlock()

	var errList []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
