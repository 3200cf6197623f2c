package config

import (
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/koustreak/sphinxql/internal/errs"
)

// Node is one search-index replica. Immutable once read; identified by its
// index within the profile's node list.
type Node struct {
	Host   string
	Port   int
	Weight int
}

// Addr returns host:port.
func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Profile is a named set of connection parameters.
type Profile struct {
	Name   string
	Active bool
	Nodes  []Node

	pool bool
}

// Balanced reports whether the profile was declared as a pool and needs
// node selection before connecting.
func (p Profile) Balanced() bool {
	return p.pool
}

// NewPool builds a balanced profile from nodes. Mostly useful in tests and
// for callers assembling profiles without a config file.
func NewPool(name string, nodes ...Node) Profile {
	return Profile{Name: name, Active: true, Nodes: nodes, pool: true}
}

// NewSingle builds a one-node profile.
func NewSingle(name string, node Node) Profile {
	return Profile{Name: name, Active: true, Nodes: []Node{node}}
}

// Provider resolves a profile by name.
type Provider interface {
	Profile(name string) (Profile, error)
}

// Live is a Provider whose configuration can be swapped while readers use
// it, e.g. from Watch.
type Live struct {
	cur atomic.Pointer[Config]
}

// NewLive wraps cfg.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.cur.Store(cfg)
	return l
}

// Store replaces the active configuration.
func (l *Live) Store(cfg *Config) {
	l.cur.Store(cfg)
}

// Config returns the active configuration.
func (l *Live) Config() *Config {
	return l.cur.Load()
}

// Profile implements Provider.
func (l *Live) Profile(name string) (Profile, error) {
	return l.cur.Load().Profile(name)
}

func buildProfile(name string, raw ProfileCfg) (Profile, error) {
	p := Profile{Name: strings.ToLower(name), Active: true}
	if raw.Active != nil {
		p.Active = *raw.Active
	}

	switch {
	case raw.Host != "" && len(raw.Nodes) > 0:
		return Profile{}, errs.Newf(errs.ErrKindConfig, "profile %q: host and nodes are mutually exclusive", name)
	case raw.Host != "":
		n, err := buildNode(name, 0, NodeCfg{Host: raw.Host, Port: raw.Port})
		if err != nil {
			return Profile{}, err
		}
		p.Nodes = []Node{n}
	case len(raw.Nodes) > 0:
		p.pool = true
		p.Nodes = make([]Node, 0, len(raw.Nodes))
		for i, rn := range raw.Nodes {
			n, err := buildNode(name, i, rn)
			if err != nil {
				return Profile{}, err
			}
			p.Nodes = append(p.Nodes, n)
		}
	default:
		return Profile{}, errs.Newf(errs.ErrKindConfig, "profile %q: needs host or nodes", name)
	}
	return p, nil
}

func buildNode(profile string, i int, raw NodeCfg) (Node, error) {
	if raw.Host == "" {
		return Node{}, errs.Newf(errs.ErrKindConfig, "profile %q: node[%d] has empty host", profile, i)
	}
	port := raw.Port
	if port == 0 {
		port = defaultPort
	}
	if port < 0 || port > 65535 {
		return Node{}, errs.Newf(errs.ErrKindConfig, "profile %q: node[%d] has invalid port %d", profile, i, raw.Port)
	}
	weight := 1
	if raw.Weight != nil {
		weight = *raw.Weight
	}
	if weight < 0 || weight > MaxWeight {
		return Node{}, errs.Newf(errs.ErrKindConfig, "profile %q: node[%d] has weight %d outside [0, %d]", profile, i, weight, MaxWeight)
	}
	return Node{Host: raw.Host, Port: port, Weight: weight}, nil
}
